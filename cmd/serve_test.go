package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemory()
	recs := []model.Record{
		{
			ID:       "rec-1",
			SourceID: "doc-1",
			Document: model.Document{ID: "doc-1", Title: "Cannot hire engineers"},
			Ideas:    []model.Idea{{Name: "SourcePilot", Score: 70}},
		},
		{
			ID:       "rec-2",
			SourceID: "doc-2",
			Document: model.Document{ID: "doc-2", Title: "Follow-ups fall through"},
			Ideas:    []model.Idea{{Name: "OutreachLoop", Score: 41}},
		},
	}
	for i := range recs {
		require.NoError(t, st.InsertRecord(context.Background(), &recs[i]))
	}
	return st
}

func TestHandleListRecords(t *testing.T) {
	st := seededStore(t)
	rr := httptest.NewRecorder()
	handleListRecords(st)(rr, httptest.NewRequest(http.MethodGet, "/records", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Records []model.Record `json:"records"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Records, 2)
}

func TestHandleListRecordsMinScoreFilter(t *testing.T) {
	st := seededStore(t)
	rr := httptest.NewRecorder()
	handleListRecords(st)(rr, httptest.NewRequest(http.MethodGet, "/records?min_score=50", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Records []model.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "rec-1", body.Records[0].ID)
}

func TestHandleListRecordsBadMinScore(t *testing.T) {
	rr := httptest.NewRecorder()
	handleListRecords(store.NewMemory())(rr, httptest.NewRequest(http.MethodGet, "/records?min_score=high", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleListRecordsEmptyStoreReturnsEmptyArray(t *testing.T) {
	rr := httptest.NewRecorder()
	handleListRecords(store.NewMemory())(rr, httptest.NewRequest(http.MethodGet, "/records", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"records":[]`)
}

func TestHandleGetRecord(t *testing.T) {
	st := seededStore(t)
	r := chi.NewRouter()
	r.Get("/records/{id}", handleGetRecord(st))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/rec-2", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var rec model.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "doc-2", rec.SourceID)
	assert.Equal(t, "OutreachLoop", rec.Ideas[0].Name)
}

func TestHandleGetRecordNotFound(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/records/{id}", handleGetRecord(store.NewMemory()))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
