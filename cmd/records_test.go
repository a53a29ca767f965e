package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/store"
)

func TestImportRecords(t *testing.T) {
	path := writeTemp(t, "records.json", `[
		{
			"source_id": "doc-1",
			"document": {"id": "doc-1", "title": "Cannot hire engineers"},
			"ideas": [{"name": "SourcePilot", "score": 70}]
		},
		{
			"id": "rec-keep",
			"source_id": "doc-2",
			"document": {"id": "doc-2", "title": "Follow-ups fall through"},
			"ideas": []
		}
	]`)

	st := store.NewMemory()
	n, err := importRecords(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Ids from the file survive; missing ones are assigned.
	rec, err := st.GetRecord(context.Background(), "rec-keep")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", rec.SourceID)

	recs, err := st.ListRecords(context.Background(), store.RecordFilter{SourceID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
	assert.False(t, recs[0].CreatedAt.IsZero())
}

func TestImportRecordsBadJSON(t *testing.T) {
	path := writeTemp(t, "records.json", `{"not": "an array"}`)

	_, err := importRecords(context.Background(), store.NewMemory(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse records file")
}

func TestImportRecordsMissingFile(t *testing.T) {
	_, err := importRecords(context.Background(), store.NewMemory(), "/does/not/exist.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read records file")
}
