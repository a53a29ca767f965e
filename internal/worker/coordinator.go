package worker

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/queue"
	"github.com/sells-group/opportunity-cli/internal/resilience"
	"github.com/sells-group/opportunity-cli/internal/store"
	"github.com/sells-group/opportunity-cli/pkg/posts"
)

// Source fetches community posts from the external document source.
type Source interface {
	FetchPosts(ctx context.Context, topic string, limit int) ([]posts.Post, error)
}

// Coordinator fetches fresh documents and fans out one PostProcessor job per
// new, not-yet-processed document.
type Coordinator struct {
	source Source
	store  store.Store
	queue  *queue.Manager
	cfg    config.SourceConfig
}

// NewCoordinator creates a coordinator worker.
func NewCoordinator(source Source, st store.Store, q *queue.Manager, cfg config.SourceConfig) *Coordinator {
	return &Coordinator{source: source, store: st, queue: q, cfg: cfg}
}

// Run executes one coordinator job and returns the spawned job ids. When all
// fetched documents were already processed, it retries with a doubled fetch
// limit up to the configured cap before giving up with ErrNoNewInput.
func (c *Coordinator) Run(ctx context.Context) ([]string, error) {
	c.sweepFetchCache(ctx)

	limit := c.cfg.FetchLimit
	if limit <= 0 {
		limit = 10
	}
	maxLimit := c.cfg.MaxFetchLimit
	if maxLimit < limit {
		maxLimit = limit
	}

	for {
		fresh, err := c.fetchNew(ctx, limit)
		if err != nil {
			return nil, err
		}

		if len(fresh) == 0 {
			if limit >= maxLimit {
				zap.L().Warn("coordinator: no new documents at maximum fetch limit",
					zap.String("topic", c.cfg.Topic),
					zap.Int("limit", limit))
				return nil, ErrNoNewInput
			}
			limit = min(limit*2, maxLimit)
			zap.L().Info("coordinator: all documents already processed, growing fetch limit",
				zap.String("topic", c.cfg.Topic),
				zap.Int("limit", limit))
			continue
		}

		ids, err := c.enqueueAll(ctx, fresh)
		if err != nil {
			return ids, err
		}
		zap.L().Info("coordinator: spawned post-processor jobs",
			zap.String("topic", c.cfg.Topic),
			zap.Int("documents", len(fresh)),
			zap.Int("jobs", len(ids)))
		return ids, nil
	}
}

// sweepFetchCache prunes expired fetch-cache rows on each coordinator tick,
// the same cadence the queue uses for its own expired jobs. A failed sweep
// never blocks the fetch.
func (c *Coordinator) sweepFetchCache(ctx context.Context) {
	pruned, err := c.store.DeleteExpiredFetches(ctx)
	if err != nil {
		zap.L().Warn("coordinator: fetch cache sweep failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		zap.L().Debug("coordinator: pruned expired fetch cache entries", zap.Int("pruned", pruned))
	}
}

// fetchNew fetches up to limit documents and drops those already processed.
func (c *Coordinator) fetchNew(ctx context.Context, limit int) ([]model.Document, error) {
	policy := resilience.SourcePolicy()
	policy.OnRetry = resilience.Logger("posts", "fetch")

	fetched, err := resilience.DoVal(ctx, policy, func(ctx context.Context) ([]posts.Post, error) {
		return c.source.FetchPosts(ctx, c.cfg.Topic, limit)
	})
	if err != nil {
		zap.L().Error("coordinator: document fetch failed",
			zap.String("topic", c.cfg.Topic),
			zap.Error(err))
		return nil, eris.Wrap(ErrSourceUnavailable, err.Error())
	}

	processed, err := c.store.ListProcessedSourceIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "coordinator: list processed source ids")
	}

	fresh := make([]model.Document, 0, len(fetched))
	for _, p := range fetched {
		if processed[p.ID] {
			continue
		}
		fresh = append(fresh, toDocument(p))
	}
	return fresh, nil
}

// enqueueAll fans out one PostProcessor job per document. A partial failure
// still returns the ids enqueued so far.
func (c *Coordinator) enqueueAll(ctx context.Context, docs []model.Document) ([]string, error) {
	ids := make([]string, len(docs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			id, err := c.queue.EnqueuePostProcessor(gctx, doc)
			if err != nil {
				return eris.Wrap(err, "coordinator: enqueue post-processor")
			}
			mu.Lock()
			ids[i] = id
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		spawned := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				spawned = append(spawned, id)
			}
		}
		return spawned, err
	}
	return ids, nil
}

func toDocument(p posts.Post) model.Document {
	return model.Document{
		ID:          p.ID,
		Title:       p.Title,
		Body:        p.SelfText,
		Subreddit:   p.Subreddit,
		Author:      p.Author,
		Upvotes:     p.Ups,
		NumComments: p.NumComments,
		Permalink:   p.Permalink,
		CreatedAt:   p.Created(),
	}
}
