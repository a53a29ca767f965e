package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
)

func sampleRecord(sourceID string) model.Record {
	return model.Record{
		SourceID: sourceID,
		Document: model.Document{
			ID:        sourceID,
			Title:     "Hiring is brutal right now",
			Body:      "Posted an engineering role three months ago, zero applications.",
			Subreddit: "startups",
			Upvotes:   87,
		},
		PainPoints: []model.PainPoint{{
			Description: "cannot fill an engineering role after three months of sourcing",
			Severity:    model.SeverityMedium,
			Category:    "hiring",
			Source:      sourceID,
			Confidence:  0.8,
		}},
		Ideas: []model.Idea{{
			Name:     "role-fit sourcing service",
			Pitch:    "curated candidate pipelines for small engineering teams",
			Score:    61.5,
			Category: "hiring",
			Sources:  []string{sourceID},
		}},
	}
}

func TestMemoryStore_RecordLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	rec := sampleRecord("post-1")
	require.NoError(t, s.InsertRecord(ctx, &rec))
	require.NotEmpty(t, rec.ID)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "post-1", got.SourceID)

	_, err = s.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	seen, err := s.ListProcessedSourceIDs(ctx)
	require.NoError(t, err)
	assert.True(t, seen["post-1"])

	// Re-inserting the same source replaces the record.
	again := sampleRecord("post-1")
	require.NoError(t, s.InsertRecord(ctx, &again))
	seen, err = s.ListProcessedSourceIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestMemoryStore_ListRecordsFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	high := sampleRecord("post-high")
	high.Ideas[0].Score = 82
	low := sampleRecord("post-low")
	low.Ideas[0].Score = 35

	_, err := s.InsertRecords(ctx, []model.Record{high, low})
	require.NoError(t, err)

	recs, err := s.ListRecords(ctx, RecordFilter{MinScore: 50})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "post-high", recs[0].SourceID)

	recs, err = s.ListRecords(ctx, RecordFilter{SourceID: "post-low"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "post-low", recs[0].SourceID)
}

func TestMemoryStore_FetchCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	data, err := s.GetCachedFetch(ctx, "r/startups:new:25")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.SetCachedFetch(ctx, "r/startups:new:25", []byte(`{"data":{}}`), time.Minute))

	data, err = s.GetCachedFetch(ctx, "r/startups:new:25")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{}}`, string(data))

	// Expired entries read as a miss and get swept.
	require.NoError(t, s.SetCachedFetch(ctx, "stale", []byte(`{}`), -time.Minute))
	data, err = s.GetCachedFetch(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, data)

	pruned, err := s.DeleteExpiredFetches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
}

func TestTopScore(t *testing.T) {
	t.Parallel()

	rec := sampleRecord("post-1")
	rec.Ideas = append(rec.Ideas, model.Idea{Name: "second", Score: 74.2})
	assert.InDelta(t, 74.2, topScore(&rec), 0.001)

	empty := model.Record{}
	assert.Zero(t, topScore(&empty))
}
