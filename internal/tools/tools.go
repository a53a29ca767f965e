// Package tools implements the evidence tools the stage agents call during
// phase one: pure scoring functions over pain descriptions, market framing,
// and competitive positioning. The same functions back the deterministic
// scoring fallback, so their outputs must stay stable for a given input.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

// Tool names as exposed to the model.
const (
	ToolPainSeverity = "assess_pain_severity"
	ToolMarketSize   = "estimate_market_size"
	ToolCompetition  = "analyze_competition"
)

// ErrUnknownTool is returned when the model calls a tool we did not define.
var ErrUnknownTool = eris.New("tools: unknown tool")

// Toolkit evaluates evidence tool calls against the configured heuristics.
type Toolkit struct {
	cfg config.ScoringConfig
}

func New(cfg config.ScoringConfig) *Toolkit {
	return &Toolkit{cfg: cfg}
}

// PainSeverityInput is the argument shape for assess_pain_severity.
type PainSeverityInput struct {
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
	Upvotes     int      `json:"upvotes,omitempty"`
	Comments    int      `json:"comments,omitempty"`
}

// PainSeverityResult scores how acute a pain point is.
type PainSeverityResult struct {
	Score          float64        `json:"score"`
	Recommendation model.Severity `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
}

// PainSeverity combines engagement magnitude with urgency language. Score is
// 0-100.
func (t *Toolkit) PainSeverity(in PainSeverityInput) PainSeverityResult {
	engagement := stepScore(in.Upvotes, t.cfg.EngagementUpvoteSteps, 8) +
		stepScore(in.Comments, t.cfg.EngagementCommentSteps, 4)
	if engagement > 50 {
		engagement = 50
	}

	urgency := 0.0
	evidence := strings.ToLower(in.Description + " " + strings.Join(in.Examples, " "))
	matched := []string{}
	for _, kw := range t.cfg.UrgencyKeywords {
		if strings.Contains(evidence, kw) {
			urgency += 10
			matched = append(matched, kw)
		}
	}
	if urgency > 20 {
		urgency = 20
	}

	score := clamp(30+engagement+urgency, 0, 100)

	rec := model.SeverityLow
	switch {
	case score >= 70:
		rec = model.SeverityHigh
	case score >= 40:
		rec = model.SeverityMedium
	}

	reasoning := fmt.Sprintf("engagement contributes %.0f, urgency language contributes %.0f", engagement, urgency)
	if len(matched) > 0 {
		reasoning += fmt.Sprintf(" (matched: %s)", strings.Join(matched, ", "))
	}

	return PainSeverityResult{Score: score, Recommendation: rec, Reasoning: reasoning}
}

// MarketSizeInput is the argument shape for estimate_market_size.
type MarketSizeInput struct {
	Audience string            `json:"audience"`
	Category string            `json:"category"`
	Scope    model.MarketScope `json:"scope"`
}

// MarketSizeResult estimates addressable market size.
type MarketSizeResult struct {
	Score         float64 `json:"score"`
	EstimateRange string  `json:"estimate_range"`
	Confidence    float64 `json:"confidence"`
}

// MarketSize scores 0-100. Scope dominates; known large-market categories
// and broad audience phrasing add fixed bonuses.
func (t *Toolkit) MarketSize(in MarketSizeInput) MarketSizeResult {
	var base float64
	var estimate string
	confidence := 0.5
	switch in.Scope {
	case model.ScopeHorizontal:
		base, estimate = 80, ">$10B"
	case model.ScopeVertical:
		base, estimate, confidence = 60, "$1B-$10B", 0.6
	default:
		base, estimate, confidence = 35, "<$1B", 0.7
	}

	category := strings.ToLower(in.Category)
	for _, c := range t.cfg.LargeMarketCategories {
		if strings.Contains(category, c) {
			base += 10
			break
		}
	}

	audience := strings.ToLower(in.Audience)
	for _, term := range t.cfg.BroadAudienceTerms {
		if strings.Contains(audience, term) {
			base += 10
			break
		}
	}

	return MarketSizeResult{
		Score:         clamp(base, 0, 100),
		EstimateRange: estimate,
		Confidence:    confidence,
	}
}

// CompetitionInput is the argument shape for analyze_competition.
type CompetitionInput struct {
	ProductName string   `json:"product_name"`
	Category    string   `json:"category"`
	KeyFeatures []string `json:"key_features,omitempty"`
}

// CompetitionResult scores competitive pressure. Higher = less crowded.
type CompetitionResult struct {
	Score          float64 `json:"score"`
	Landscape      string  `json:"landscape"`
	Recommendation string  `json:"recommendation"`
}

// Competition starts from an open-field baseline, penalizes oversaturated
// category keywords, and credits declared differentiating features.
func (t *Toolkit) Competition(in CompetitionInput) CompetitionResult {
	score := 70.0

	haystack := strings.ToLower(in.ProductName + " " + in.Category)
	penalty := 0.0
	for _, kw := range t.cfg.OversaturatedKeywords {
		if strings.Contains(haystack, kw) {
			penalty += 20
		}
	}
	if penalty > 40 {
		penalty = 40
	}
	score -= penalty

	bonus := float64(len(in.KeyFeatures)) * 5
	if bonus > 15 {
		bonus = 15
	}
	score = clamp(score+bonus, 0, 100)

	landscape := "open"
	recommendation := "viable space, differentiation optional"
	switch {
	case score < 40:
		landscape = "crowded"
		recommendation = "requires a sharp wedge to enter"
	case score < 70:
		landscape = "competitive"
		recommendation = "viable with clear differentiation"
	}

	return CompetitionResult{Score: score, Landscape: landscape, Recommendation: recommendation}
}

// InferScope guesses a market scope from audience and category phrasing.
// Broad audience terms imply horizontal reach; a known large-market
// category implies vertical; anything else is treated as niche.
func (t *Toolkit) InferScope(audience, category string) model.MarketScope {
	audience = strings.ToLower(audience)
	for _, term := range t.cfg.BroadAudienceTerms {
		if strings.Contains(audience, term) {
			return model.ScopeHorizontal
		}
	}
	category = strings.ToLower(category)
	for _, c := range t.cfg.LargeMarketCategories {
		if strings.Contains(category, c) {
			return model.ScopeVertical
		}
	}
	return model.ScopeNiche
}

// ComplexCategory reports whether the category carries regulatory or
// integration burden that lowers build feasibility.
func (t *Toolkit) ComplexCategory(category string) bool {
	category = strings.ToLower(category)
	for _, term := range t.cfg.ComplexCategoryTerms {
		if strings.Contains(category, term) {
			return true
		}
	}
	return false
}

// Dispatch runs the named tool against raw JSON input and returns the result
// serialized as JSON, ready to go back to the model as a tool_result.
func (t *Toolkit) Dispatch(name string, input json.RawMessage) (string, error) {
	var result any
	switch name {
	case ToolPainSeverity:
		var in PainSeverityInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", eris.Wrapf(err, "tools: decode %s input", name)
		}
		result = t.PainSeverity(in)
	case ToolMarketSize:
		var in MarketSizeInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", eris.Wrapf(err, "tools: decode %s input", name)
		}
		result = t.MarketSize(in)
	case ToolCompetition:
		var in CompetitionInput
		if err := json.Unmarshal(input, &in); err != nil {
			return "", eris.Wrapf(err, "tools: decode %s input", name)
		}
		result = t.Competition(in)
	default:
		return "", eris.Wrapf(ErrUnknownTool, "%s", name)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", eris.Wrapf(err, "tools: encode %s result", name)
	}
	return string(out), nil
}

// Definitions returns the tool declarations for the given names.
func Definitions(names ...string) []anthropic.Tool {
	var defs []anthropic.Tool
	for _, name := range names {
		if def, ok := definitions[name]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}

var definitions = map[string]anthropic.Tool{
	ToolPainSeverity: {
		Name:        ToolPainSeverity,
		Description: "Assess how severe a pain point is from its description, verbatim evidence, and engagement counts.",
		InputSchema: map[string]any{
			"description": map[string]any{"type": "string", "description": "The underlying problem statement"},
			"examples":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Verbatim quotes from the source document"},
			"upvotes":     map[string]any{"type": "integer"},
			"comments":    map[string]any{"type": "integer"},
		},
		Required: []string{"description"},
	},
	ToolMarketSize: {
		Name:        ToolMarketSize,
		Description: "Estimate the addressable market for a target audience, category, and market scope.",
		InputSchema: map[string]any{
			"audience": map[string]any{"type": "string", "description": "Who buys this"},
			"category": map[string]any{"type": "string"},
			"scope":    map[string]any{"type": "string", "enum": []string{"niche", "vertical", "horizontal"}},
		},
		Required: []string{"audience", "category", "scope"},
	},
	ToolCompetition: {
		Name:        ToolCompetition,
		Description: "Analyze how crowded the competitive landscape is for a proposed product. Higher score means less competition.",
		InputSchema: map[string]any{
			"product_name": map[string]any{"type": "string"},
			"category":     map[string]any{"type": "string"},
			"key_features": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Differentiating features"},
		},
		Required: []string{"product_name", "category"},
	},
}

// stepScore awards per-threshold points for each step the value clears.
func stepScore(value int, steps []int, perStep float64) float64 {
	var score float64
	for _, step := range steps {
		if value >= step {
			score += perStep
		}
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
