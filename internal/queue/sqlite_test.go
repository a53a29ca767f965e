package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteJobRoundtrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestSQLite(t)

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID:        "job-1",
		Type:      model.JobTypePostProcessor,
		Status:    model.JobStatusProcessing,
		CreatedAt: started.Add(-time.Minute),
		StartedAt: &started,
		Payload:   []byte(`{"id":"p1","title":"hiring is hard"}`),
	}
	require.NoError(t, store.PutJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.Type, got.Type)
	assert.Equal(t, job.Status, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.JSONEq(t, string(job.Payload), string(got.Payload))

	// Upsert to terminal state with results.
	done := started.Add(time.Minute)
	expires := done.Add(24 * time.Hour)
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &done
	job.Result = []string{"rec-1", "rec-2"}
	job.ExpiresAt = &expires
	require.NoError(t, store.PutJob(ctx, job))

	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, []string{"rec-1", "rec-2"}, got.Result)
	require.NotNil(t, got.ExpiresAt)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSQLitePendingOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestSQLite(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutJob(ctx, &model.Job{
			ID: id, Type: model.JobTypePostProcessor,
			Status: model.JobStatusPending, CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, store.PushPending(ctx, id))
	}

	oldest, err := store.OldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", oldest)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, pending)

	require.NoError(t, store.RemovePending(ctx, "a"))
	oldest, err = store.OldestPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", oldest)

	// Removing an id that is not pending is a no-op.
	require.NoError(t, store.RemovePending(ctx, "a"))

	require.NoError(t, store.RemovePending(ctx, "b"))
	require.NoError(t, store.RemovePending(ctx, "c"))
	oldest, err = store.OldestPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, oldest)
}

func TestSQLiteProcessingMarker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestSQLite(t)

	current, err := store.Processing(ctx)
	require.NoError(t, err)
	assert.Empty(t, current)

	require.NoError(t, store.SetProcessing(ctx, "job-1"))

	current, err = store.Processing(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", current)

	// A second job cannot take the marker while the first holds it.
	err = store.SetProcessing(ctx, "job-2")
	assert.Error(t, err)

	// Re-marking the holder is idempotent.
	require.NoError(t, store.SetProcessing(ctx, "job-1"))

	// Clearing with the wrong id leaves the marker alone.
	require.NoError(t, store.ClearProcessing(ctx, "job-2"))
	current, err = store.Processing(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", current)

	require.NoError(t, store.ClearProcessing(ctx, "job-1"))
	current, err = store.Processing(ctx)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestSQLitePruneExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestSQLite(t)

	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, store.PutJob(ctx, &model.Job{
		ID: "expired", Type: model.JobTypeCoordinator,
		Status: model.JobStatusCompleted, CreatedAt: past, ExpiresAt: &past,
	}))
	require.NoError(t, store.PutJob(ctx, &model.Job{
		ID: "fresh", Type: model.JobTypeCoordinator,
		Status: model.JobStatusCompleted, CreatedAt: past, ExpiresAt: &future,
	}))
	require.NoError(t, store.PutJob(ctx, &model.Job{
		ID: "no-ttl", Type: model.JobTypeCoordinator,
		Status: model.JobStatusPending, CreatedAt: past,
	}))

	pruned, err := store.PruneExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.GetJob(ctx, "expired")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = store.GetJob(ctx, "fresh")
	assert.NoError(t, err)
	_, err = store.GetJob(ctx, "no-ttl")
	assert.NoError(t, err)
}

func TestManagerOnSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(newTestSQLite(t))

	id, err := m.EnqueuePostProcessor(ctx, testDoc("s1"))
	require.NoError(t, err)

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)

	// Single flight holds across the persistent store too.
	none, err := m.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, m.Complete(ctx, id, []string{"rec-1"}))
	got, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}
