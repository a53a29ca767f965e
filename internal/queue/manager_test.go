package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDoc(id string) model.Document {
	return model.Document{
		ID:        id,
		Title:     "Struggling to hire engineers",
		Body:      "We posted the role three months ago and got zero applications.",
		Subreddit: "startups",
		Upvotes:   42,
	}
}

func TestEnqueueDequeueRoundtrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	m := NewManager(NewMemoryStore(), WithClock(clock.Now))

	id, err := m.EnqueuePostProcessor(ctx, testDoc("p1"))
	require.NoError(t, err)

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, model.JobTypePostProcessor, job.Type)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	doc, err := job.DocumentPayload()
	require.NoError(t, err)
	assert.Equal(t, "p1", doc.ID)

	require.NoError(t, m.Complete(ctx, id, []string{"rec-1"}))

	got, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, []string{"rec-1"}, got.Result)
	require.NotNil(t, got.ExpiresAt)
}

func TestDequeueFIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	first, err := m.EnqueuePostProcessor(ctx, testDoc("a"))
	require.NoError(t, err)
	second, err := m.EnqueuePostProcessor(ctx, testDoc("b"))
	require.NoError(t, err)

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)

	require.NoError(t, m.Complete(ctx, first, nil))

	job, err = m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second, job.ID)
}

func TestSingleFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	for i := 0; i < 5; i++ {
		_, err := m.EnqueuePostProcessor(ctx, testDoc("doc"))
		require.NoError(t, err)
	}

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	// While one job is in flight no further job is handed out,
	// regardless of how many workers ask.
	var wg sync.WaitGroup
	claims := make(chan *model.Job, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Dequeue(ctx)
			assert.NoError(t, err)
			if got != nil {
				claims <- got
			}
		}()
	}
	wg.Wait()
	close(claims)
	assert.Empty(t, claims)

	require.NoError(t, m.Complete(ctx, job.ID, nil))

	next, err := m.Dequeue(ctx)
	require.NoError(t, err)
	assert.NotNil(t, next)
}

func TestConcurrentDequeueClaimsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	_, err := m.EnqueueCoordinator(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	claims := make(chan *model.Job, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Dequeue(ctx)
			assert.NoError(t, err)
			if got != nil {
				claims <- got
			}
		}()
	}
	wg.Wait()
	close(claims)

	assert.Len(t, claims, 1)
}

func TestTimeoutReclamation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	m := NewManager(NewMemoryStore(),
		WithClock(clock.Now),
		WithProcessingTimeout(10*time.Minute),
	)

	stuck, err := m.EnqueuePostProcessor(ctx, testDoc("stuck"))
	require.NoError(t, err)
	waiting, err := m.EnqueuePostProcessor(ctx, testDoc("waiting"))
	require.NoError(t, err)

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, stuck, job.ID)

	// Still inside the timeout: the in-flight job is respected.
	clock.Advance(9 * time.Minute)
	job, err = m.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	// Past the timeout: the stuck job is force-failed and the same
	// dequeue call continues to the next pending job.
	clock.Advance(2 * time.Minute)
	job, err = m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, waiting, job.ID)

	failed, err := m.Status(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "timeout")
}

func TestFailClearsMarkerAndSetsRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	m := NewManager(NewMemoryStore(),
		WithClock(clock.Now),
		WithRetentionTTL(24*time.Hour),
	)

	id, err := m.EnqueuePostProcessor(ctx, testDoc("f"))
	require.NoError(t, err)

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, m.Fail(ctx, id, "pipeline exceeded wall clock budget"))

	got, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, clock.Now().Add(24*time.Hour), *got.ExpiresAt)

	// Marker is free again.
	next, err := m.EnqueueCoordinator(ctx)
	require.NoError(t, err)
	job, err = m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, next, job.ID)
}

func TestPruneExpiredOnDequeue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	m := NewManager(NewMemoryStore(),
		WithClock(clock.Now),
		WithRetentionTTL(time.Hour),
	)

	id, err := m.EnqueuePostProcessor(ctx, testDoc("old"))
	require.NoError(t, err)
	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, m.Complete(ctx, id, nil))

	clock.Advance(2 * time.Hour)

	// The sweep on the next dequeue removes the expired record.
	_, err = m.Dequeue(ctx)
	require.NoError(t, err)

	_, err = m.Status(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueuePosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	first, err := m.EnqueuePostProcessor(ctx, testDoc("1"))
	require.NoError(t, err)
	second, err := m.EnqueuePostProcessor(ctx, testDoc("2"))
	require.NoError(t, err)
	third, err := m.EnqueuePostProcessor(ctx, testDoc("3"))
	require.NoError(t, err)

	pos, ok, err := m.QueuePosition(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, pos)

	pos, ok, err = m.QueuePosition(ctx, third)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, pos)

	job, err := m.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)

	// Claimed jobs are no longer pending.
	_, ok, err = m.QueuePosition(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	pos, ok, err = m.QueuePosition(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
}
