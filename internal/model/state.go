package model

import "time"

// Step is the pipeline orchestrator's current position.
type Step string

const (
	StepInitializing Step = "initializing"
	StepExtracting   Step = "extracting"
	StepGenerating   Step = "generating"
	StepScoring      Step = "scoring"
	StepComplete     Step = "complete"
	StepError        Step = "error"
)

// PipelineState is the accumulating state of one pipeline run. It is owned
// exclusively by that run and mutated only by the orchestrator between stages.
type PipelineState struct {
	WorkflowID      string      `json:"workflow_id"`
	CurrentStep     Step        `json:"current_step"`
	SourceDocuments []Document  `json:"source_documents"`
	PainPoints      []PainPoint `json:"pain_points,omitempty"`
	Ideas           []Idea      `json:"ideas,omitempty"`
	Errors          []string    `json:"errors,omitempty"`
	StartTime       time.Time   `json:"start_time"`
}

// StateUpdate is a partial update returned by a stage. Nil slices leave the
// corresponding state field untouched; Errors always appends.
type StateUpdate struct {
	PainPoints []PainPoint
	Ideas      []Idea
	Errors     []string
}

// Merge applies a stage's partial update: replace-or-keep for artifacts,
// append-only for errors.
func (s *PipelineState) Merge(u StateUpdate) {
	if u.PainPoints != nil {
		s.PainPoints = u.PainPoints
	}
	if u.Ideas != nil {
		s.Ideas = u.Ideas
	}
	s.Errors = append(s.Errors, u.Errors...)
}
