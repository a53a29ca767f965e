package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/pipeline"
	"github.com/sells-group/opportunity-cli/internal/queue"
	"github.com/sells-group/opportunity-cli/internal/store"
	"github.com/sells-group/opportunity-cli/internal/worker"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
	"github.com/sells-group/opportunity-cli/pkg/notify"
	"github.com/sells-group/opportunity-cli/pkg/posts"
)

// env holds the wired application components shared by the commands.
type env struct {
	Store  store.Store
	Queue  *queue.Manager
	Worker *worker.Worker

	queueStore *queue.SQLiteStore
}

// initEnv wires stores, queue, source, pipeline, and workers from config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	qs, err := queue.NewSQLite(cfg.Queue.DatabasePath)
	if err != nil {
		st.Close()
		return nil, eris.Wrap(err, "open queue store")
	}
	if err := qs.Migrate(ctx); err != nil {
		st.Close()
		qs.Close()
		return nil, eris.Wrap(err, "migrate queue store")
	}

	manager := queue.NewManager(qs,
		queue.WithProcessingTimeout(cfg.Queue.ProcessingTimeout),
		queue.WithRetentionTTL(cfg.Queue.RetentionTTL),
	)

	source := posts.NewClient(cfg.Source.UserAgent,
		posts.WithBaseURL(cfg.Source.BaseURL),
		posts.WithRateLimit(cfg.Source.RatePerSec),
		posts.WithCache(st, cfg.Source.CacheTTL),
	)

	aiClient := anthropic.NewClient(cfg.Anthropic.Key)
	pipe := pipeline.New(cfg, aiClient)

	var notifier worker.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewClient(cfg.Notify.WebhookURL, cfg.Server.TriggerSecret)
	}

	coordinator := worker.NewCoordinator(source, st, manager, cfg.Source)
	post := worker.NewPostProcessor(pipe, st, notifier, cfg.Notify)

	return &env{
		Store:      st,
		Queue:      manager,
		Worker:     worker.New(manager, coordinator, post),
		queueStore: qs,
	}, nil
}

// openStore opens the record store selected by config.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		return st, nil
	case "sqlite", "":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases both stores.
func (e *env) Close() {
	if err := e.queueStore.Close(); err != nil {
		zap.L().Warn("close queue store", zap.Error(err))
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close record store", zap.Error(err))
	}
}
