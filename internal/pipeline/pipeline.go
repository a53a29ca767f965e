// Package pipeline drives one source document set through the three
// reasoning stages: extract pain points, generate ideas, score them. Stage
// failures degrade the output instead of failing the job; only an empty
// input set or the wall-clock budget is fatal.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/tools"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

// DefaultWallClockBudget bounds one pipeline run, well under the queue's
// stuck-job timeout so a slow run fails here first.
const DefaultWallClockBudget = 180 * time.Second

// Pipeline orchestrates the extract -> generate -> score state machine.
type Pipeline struct {
	cfg       *config.Config
	anthropic anthropic.Client
	toolkit   *tools.Toolkit
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, aiClient anthropic.Client) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		anthropic: aiClient,
		toolkit:   tools.New(cfg.Scoring),
	}
}

// Run executes the full pipeline for one document set. The returned state
// carries whatever artifacts survived plus the per-stage errors; the error
// return is non-nil only for the job-fatal cases (empty input, wall-clock
// budget exceeded).
func (p *Pipeline) Run(ctx context.Context, workflowID string, docs []model.Document) (*model.PipelineState, anthropic.TokenUsage, error) {
	log := zap.L().With(zap.String("workflow_id", workflowID))
	log.Info("pipeline: starting", zap.Int("documents", len(docs)))

	state := &model.PipelineState{
		WorkflowID:      workflowID,
		CurrentStep:     model.StepInitializing,
		SourceDocuments: docs,
		StartTime:       time.Now(),
	}
	var totalUsage anthropic.TokenUsage

	if len(docs) == 0 {
		state.CurrentStep = model.StepError
		state.Errors = append(state.Errors, "initializing: no source documents")
		return state, totalUsage, eris.New("pipeline: no source documents")
	}

	budget := p.cfg.Pipeline.WallClockBudget
	if budget <= 0 {
		budget = DefaultWallClockBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// runStage catches panics and records failures on the state, so a
	// broken stage degrades the output instead of killing the job.
	runStage := func(step model.Step, name string, fn func() (model.StateUpdate, error)) {
		state.CurrentStep = step
		start := time.Now()

		update, err := func() (u model.StateUpdate, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = eris.Errorf("panic: %v", r)
				}
			}()
			return fn()
		}()

		state.Merge(update)
		if err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("%s: %s", name, err.Error()))
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	runStage(model.StepExtracting, "extracting", func() (model.StateUpdate, error) {
		pains, usage, err := p.extract(ctx, docs)
		totalUsage.Add(usage)
		return model.StateUpdate{PainPoints: pains}, err
	})

	runStage(model.StepGenerating, "generating", func() (model.StateUpdate, error) {
		ideas, usage, err := p.generate(ctx, state.PainPoints)
		totalUsage.Add(usage)
		return model.StateUpdate{Ideas: ideas}, err
	})

	runStage(model.StepScoring, "scoring", func() (model.StateUpdate, error) {
		scored, usage, err := p.score(ctx, state.Ideas, state.PainPoints, docs)
		totalUsage.Add(usage)
		return model.StateUpdate{Ideas: scored}, err
	})

	if ctx.Err() != nil {
		state.CurrentStep = model.StepError
		return state, totalUsage, eris.Wrap(ctx.Err(), "pipeline: wall clock budget exceeded")
	}

	state.CurrentStep = model.StepComplete
	totalUsage.LogCost(p.cfg.Anthropic.Model, "pipeline")
	log.Info("pipeline: complete",
		zap.Int("pain_points", len(state.PainPoints)),
		zap.Int("ideas", len(state.Ideas)),
		zap.Int("errors", len(state.Errors)),
		zap.Duration("elapsed", time.Since(state.StartTime)),
	)

	return state, totalUsage, nil
}
