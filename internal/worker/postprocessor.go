package worker

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/store"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
	"github.com/sells-group/opportunity-cli/pkg/notify"
)

// Runner drives one document set through the reasoning pipeline.
type Runner interface {
	Run(ctx context.Context, workflowID string, docs []model.Document) (*model.PipelineState, anthropic.TokenUsage, error)
}

// Notifier delivers the post-run digest.
type Notifier interface {
	SendDigest(ctx context.Context, digest notify.Digest) error
}

// PostProcessor runs a single document through the pipeline and persists
// exactly one record.
type PostProcessor struct {
	pipeline Runner
	store    store.Store
	notifier Notifier
	cfg      config.NotifyConfig
}

// NewPostProcessor creates a post-processor worker. notifier may be nil when
// no digest delivery is configured.
func NewPostProcessor(pipe Runner, st store.Store, notifier Notifier, cfg config.NotifyConfig) *PostProcessor {
	return &PostProcessor{pipeline: pipe, store: st, notifier: notifier, cfg: cfg}
}

// Run executes one post-processor job and returns the stored record id. A
// pipeline that completed with stage errors still persists; only a fatal
// pipeline error (empty input, wall clock exceeded) fails the job with
// nothing persisted.
func (p *PostProcessor) Run(ctx context.Context, job *model.Job) ([]string, error) {
	doc, err := job.DocumentPayload()
	if err != nil {
		return nil, eris.Wrap(err, "postprocessor: decode document payload")
	}

	state, _, err := p.pipeline.Run(ctx, job.ID, []model.Document{doc})
	if err != nil {
		return nil, eris.Wrap(err, "postprocessor: pipeline")
	}

	rec := &model.Record{
		ID:         uuid.NewString(),
		SourceID:   doc.ID,
		Document:   doc,
		PainPoints: state.PainPoints,
		Ideas:      state.Ideas,
		Errors:     state.Errors,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.store.InsertRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "postprocessor: insert record")
	}

	zap.L().Info("postprocessor: record stored",
		zap.String("job_id", job.ID),
		zap.String("record_id", rec.ID),
		zap.String("source_id", doc.ID),
		zap.Int("ideas", len(state.Ideas)),
		zap.Int("stage_errors", len(state.Errors)))

	p.sendDigest(ctx, job.ID, state.Ideas)

	return []string{rec.ID}, nil
}

// sendDigest delivers the digest fire-and-forget: failures are logged, never
// returned.
func (p *PostProcessor) sendDigest(ctx context.Context, workflowID string, ideas []model.Idea) {
	if p.notifier == nil || len(ideas) == 0 {
		return
	}
	digest := buildDigest(p.cfg.Recipient, workflowID, ideas, p.cfg.DigestSize)
	if err := p.notifier.SendDigest(ctx, digest); err != nil {
		zap.L().Warn("postprocessor: digest delivery failed",
			zap.String("job_id", workflowID),
			zap.Error(err))
	}
}

// buildDigest summarizes the top-N ideas by score.
func buildDigest(recipient, workflowID string, ideas []model.Idea, topN int) notify.Digest {
	if topN <= 0 {
		topN = 5
	}

	ranked := make([]model.Idea, len(ideas))
	copy(ranked, ideas)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	summaries := make([]notify.IdeaSummary, 0, len(ranked))
	for _, idea := range ranked {
		summaries = append(summaries, notify.IdeaSummary{
			Name:     idea.Name,
			Pitch:    idea.Pitch,
			Audience: idea.TargetAudience,
			Score:    idea.Score,
		})
	}

	return notify.Digest{
		Recipient:        recipient,
		WorkflowID:       workflowID,
		GeneratedAt:      time.Now().UTC(),
		Ideas:            summaries,
		UnsubscribeToken: uuid.NewString(),
	}
}
