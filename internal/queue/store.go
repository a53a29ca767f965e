// Package queue implements the durable single-flight job queue.
package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// ErrJobNotFound is returned when a job id has no stored record.
var ErrJobNotFound = eris.New("queue: job not found")

// Store is the key-value persistence layer for the queue: job hash records,
// a FIFO list of pending job ids, and a single processing marker. All
// transition logic lives in the Manager; the store only reads and writes.
type Store interface {
	// GetJob returns the job record, or ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// PutJob creates or replaces the job hash record.
	PutJob(ctx context.Context, job *model.Job) error

	// PushPending adds the id to the front of the pending list.
	PushPending(ctx context.Context, id string) error
	// OldestPending peeks the id at the back of the pending list without
	// removing it. Returns "" when the list is empty.
	OldestPending(ctx context.Context) (string, error)
	// RemovePending removes the id from the pending list.
	RemovePending(ctx context.Context, id string) error
	// Pending returns pending ids oldest-first.
	Pending(ctx context.Context) ([]string, error)

	// Processing returns the id of the currently processing job, or "".
	Processing(ctx context.Context) (string, error)
	// SetProcessing sets the processing marker. It fails if a different job
	// already holds the marker, which enforces single-flight at the store.
	SetProcessing(ctx context.Context, id string) error
	// ClearProcessing clears the marker if it currently points at id.
	ClearProcessing(ctx context.Context, id string) error

	// PruneExpired deletes terminal jobs whose retention deadline has passed.
	PruneExpired(ctx context.Context, now time.Time) (int, error)

	Close() error
}
