package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/model"
)

const (
	// DefaultProcessingTimeout is how long a job may sit in processing
	// before the next dequeue force-fails it.
	DefaultProcessingTimeout = 10 * time.Minute
	// DefaultRetentionTTL is how long terminal jobs are kept before pruning.
	DefaultRetentionTTL = 24 * time.Hour
)

// Manager implements the queue operations on top of a Store. At most one job
// is in processing status at any instant; the mark-then-pop ordering in
// Dequeue keeps that invariant across a crash between the two writes.
type Manager struct {
	store             Store
	processingTimeout time.Duration
	retentionTTL      time.Duration
	now               func() time.Time

	// Serializes dequeue cycles within this process; the store's marker
	// constraint covers competing processes.
	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithProcessingTimeout overrides the stuck-job reclamation timeout.
func WithProcessingTimeout(d time.Duration) Option {
	return func(m *Manager) { m.processingTimeout = d }
}

// WithRetentionTTL overrides the terminal-job retention window.
func WithRetentionTTL(d time.Duration) Option {
	return func(m *Manager) { m.retentionTTL = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a queue manager over the given store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:             store,
		processingTimeout: DefaultProcessingTimeout,
		retentionTTL:      DefaultRetentionTTL,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnqueueCoordinator creates a pending coordinator job.
func (m *Manager) EnqueueCoordinator(ctx context.Context) (string, error) {
	return m.enqueue(ctx, model.JobTypeCoordinator, nil)
}

// EnqueuePostProcessor creates a pending post-processor job carrying the
// serialized source document.
func (m *Manager) EnqueuePostProcessor(ctx context.Context, doc model.Document) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", eris.Wrap(err, "queue: marshal document payload")
	}
	return m.enqueue(ctx, model.JobTypePostProcessor, payload)
}

func (m *Manager) enqueue(ctx context.Context, jobType model.JobType, payload json.RawMessage) (string, error) {
	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    model.JobStatusPending,
		CreatedAt: m.now().UTC(),
		Payload:   payload,
	}
	if err := m.store.PutJob(ctx, job); err != nil {
		return "", eris.Wrap(err, "queue: store job")
	}
	if err := m.store.PushPending(ctx, job.ID); err != nil {
		return "", eris.Wrap(err, "queue: push pending")
	}

	zap.L().Info("queue: job enqueued",
		zap.String("job_id", job.ID),
		zap.String("type", string(jobType)),
	)
	return job.ID, nil
}

// Dequeue claims the next job, or returns nil when nothing is runnable. If a
// job is already processing it is either reclaimed (force-failed when older
// than the processing timeout, after which this call continues to the next
// pending job) or respected (nil return: another job is in flight).
func (m *Manager) Dequeue(ctx context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pruned, err := m.store.PruneExpired(ctx, m.now()); err != nil {
		zap.L().Warn("queue: prune expired failed", zap.Error(err))
	} else if pruned > 0 {
		zap.L().Debug("queue: pruned expired jobs", zap.Int("count", pruned))
	}

	current, err := m.store.Processing(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: read processing marker")
	}
	if current != "" {
		reclaimed, err := m.reclaimStuck(ctx, current)
		if err != nil {
			return nil, err
		}
		if !reclaimed {
			// A live job is in flight; single-flight says wait.
			return nil, nil
		}
	}

	id, err := m.store.OldestPending(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: peek pending")
	}
	if id == "" {
		return nil, nil
	}

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "queue: load pending job %s", id)
	}

	// Mark before popping: a crash here leaves the job both marked and
	// pending, which the timeout reclamation resolves; the reverse order
	// could lose the job entirely.
	started := m.now().UTC()
	job.Status = model.JobStatusProcessing
	job.StartedAt = &started
	if err := m.store.SetProcessing(ctx, job.ID); err != nil {
		return nil, eris.Wrapf(err, "queue: mark processing %s", job.ID)
	}
	if err := m.store.PutJob(ctx, job); err != nil {
		return nil, eris.Wrapf(err, "queue: persist processing %s", job.ID)
	}
	if err := m.store.RemovePending(ctx, job.ID); err != nil {
		return nil, eris.Wrapf(err, "queue: pop pending %s", job.ID)
	}

	zap.L().Info("queue: job dequeued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
	)
	return job, nil
}

// reclaimStuck force-fails the currently processing job when it has exceeded
// the processing timeout. Returns true when the marker was freed.
func (m *Manager) reclaimStuck(ctx context.Context, id string) (bool, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		if eris.Is(err, ErrJobNotFound) {
			// Orphaned marker; free it.
			if clearErr := m.store.ClearProcessing(ctx, id); clearErr != nil {
				return false, eris.Wrap(clearErr, "queue: clear orphaned marker")
			}
			return true, nil
		}
		return false, eris.Wrapf(err, "queue: load processing job %s", id)
	}

	age := m.processingTimeout + 1
	if job.StartedAt != nil {
		age = m.now().Sub(*job.StartedAt)
	}
	if age <= m.processingTimeout {
		return false, nil
	}

	zap.L().Warn("queue: reclaiming stuck job",
		zap.String("job_id", id),
		zap.Duration("age", age),
	)
	if err := m.failLocked(ctx, job, "processing timeout exceeded"); err != nil {
		return false, err
	}
	return true, nil
}

// Complete marks the job completed with its result ids.
func (m *Manager) Complete(ctx context.Context, id string, result []string) error {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "queue: complete %s", id)
	}

	done := m.now().UTC()
	expires := done.Add(m.retentionTTL)
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &done
	job.Result = result
	job.ExpiresAt = &expires

	if err := m.store.PutJob(ctx, job); err != nil {
		return eris.Wrapf(err, "queue: persist completed %s", id)
	}
	if err := m.store.ClearProcessing(ctx, id); err != nil {
		return eris.Wrapf(err, "queue: clear marker %s", id)
	}

	zap.L().Info("queue: job completed",
		zap.String("job_id", id),
		zap.Int("results", len(result)),
	)
	return nil
}

// Fail marks the job failed with an error string. Failed jobs are not
// re-enqueued; a fresh coordinator run produces a replacement.
func (m *Manager) Fail(ctx context.Context, id string, errMsg string) error {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "queue: fail %s", id)
	}
	return m.failLocked(ctx, job, errMsg)
}

func (m *Manager) failLocked(ctx context.Context, job *model.Job, errMsg string) error {
	done := m.now().UTC()
	expires := done.Add(m.retentionTTL)
	job.Status = model.JobStatusFailed
	job.CompletedAt = &done
	job.Error = errMsg
	job.ExpiresAt = &expires

	if err := m.store.PutJob(ctx, job); err != nil {
		return eris.Wrapf(err, "queue: persist failed %s", job.ID)
	}
	if err := m.store.ClearProcessing(ctx, job.ID); err != nil {
		return eris.Wrapf(err, "queue: clear marker %s", job.ID)
	}
	// A reclaimed job may still sit on the pending list if a crash landed
	// between mark and pop.
	if err := m.store.RemovePending(ctx, job.ID); err != nil {
		return eris.Wrapf(err, "queue: remove pending %s", job.ID)
	}

	zap.L().Warn("queue: job failed",
		zap.String("job_id", job.ID),
		zap.String("error", errMsg),
	)
	return nil
}

// Status returns the job record for observability reads.
func (m *Manager) Status(ctx context.Context, id string) (*model.Job, error) {
	return m.store.GetJob(ctx, id)
}

// QueuePosition returns the job's 1-based position in the pending list
// (1 = next to run). ok is false when the job is not pending.
func (m *Manager) QueuePosition(ctx context.Context, id string) (int, bool, error) {
	pending, err := m.store.Pending(ctx)
	if err != nil {
		return 0, false, eris.Wrap(err, "queue: list pending")
	}
	for i, p := range pending {
		if p == id {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}
