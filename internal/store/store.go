package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// ErrRecordNotFound is returned when a record id does not exist.
var ErrRecordNotFound = eris.New("store: record not found")

// RecordFilter specifies criteria for listing opportunity records.
type RecordFilter struct {
	SourceID string  `json:"source_id,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	Offset   int     `json:"offset,omitempty"`
}

// Store defines the persistence interface for opportunity records and the
// source fetch cache.
type Store interface {
	// Records
	InsertRecord(ctx context.Context, rec *model.Record) error
	InsertRecords(ctx context.Context, recs []model.Record) (int64, error)
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error)
	// ListProcessedSourceIDs returns the set of source document ids that
	// already have a record, for coordinator dedup.
	ListProcessedSourceIDs(ctx context.Context) (map[string]bool, error)

	// Fetch cache
	GetCachedFetch(ctx context.Context, key string) ([]byte, error)
	SetCachedFetch(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredFetches(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// topScore returns the highest idea score in the record, the value the
// min_score filter compares against.
func topScore(rec *model.Record) float64 {
	var top float64
	for _, idea := range rec.Ideas {
		if idea.Score > top {
			top = idea.Score
		}
	}
	return top
}
