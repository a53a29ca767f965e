package model

import (
	"math"
	"time"
)

// Severity buckets a pain point by how acute the underlying problem is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MarketScope describes how broad an idea's addressable market is.
type MarketScope string

const (
	ScopeNiche      MarketScope = "niche"
	ScopeVertical   MarketScope = "vertical"
	ScopeHorizontal MarketScope = "horizontal"
)

// PainPoint is an underlying problem extracted from a source document.
// Created by the extractor stage and never mutated afterwards.
type PainPoint struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	Examples    []string `json:"examples,omitempty"`
	Confidence  float64  `json:"confidence"`
	Frequency   int      `json:"frequency"`
}

// Idea is a product concept generated from a pain point. Score and
// ScoreBreakdown are the only fields written after creation (by the scorer).
type Idea struct {
	Name           string          `json:"name"`
	Pitch          string          `json:"pitch"`
	PainPoint      string          `json:"pain_point"`
	TargetAudience string          `json:"target_audience"`
	Category       string          `json:"category"`
	Sources        []string        `json:"sources,omitempty"`
	Score          float64         `json:"score"`
	ScoreBreakdown *ScoreBreakdown `json:"score_breakdown,omitempty"`
	Confidence     float64         `json:"confidence"`
}

// Component maxima for the score breakdown. Total is out of 100.
const (
	MaxPainSeverity = 30.0
	MaxMarketSize   = 25.0
	MaxCompetition  = 20.0
	MaxFeasibility  = 15.0
	MaxEngagement   = 10.0
)

// ScoreBreakdown holds the five weighted scoring components.
// Competition is inverted: higher means a less crowded market.
type ScoreBreakdown struct {
	PainSeverity float64 `json:"pain_severity"`
	MarketSize   float64 `json:"market_size"`
	Competition  float64 `json:"competition"`
	Feasibility  float64 `json:"feasibility"`
	Engagement   float64 `json:"engagement"`
	Total        float64 `json:"total"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// Sum returns the component sum, independent of the stored Total.
func (b ScoreBreakdown) Sum() float64 {
	return b.PainSeverity + b.MarketSize + b.Competition + b.Feasibility + b.Engagement
}

// Consistent reports whether Total matches the component sum within epsilon.
func (b ScoreBreakdown) Consistent() bool {
	return math.Abs(b.Total-b.Sum()) <= 0.1
}

// Record is one persisted pipeline output: the ideas produced from a single
// source document, plus any non-fatal stage errors accumulated on the way.
type Record struct {
	ID         string      `json:"id"`
	SourceID   string      `json:"source_id"`
	Document   Document    `json:"document"`
	PainPoints []PainPoint `json:"pain_points,omitempty"`
	Ideas      []Idea      `json:"ideas"`
	Errors     []string    `json:"errors,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
