package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE id = \$1`).
		WithArgs("nonexistent-record").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nonexistent-record")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE id = \$1`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "source_id", "document", "pain_points", "ideas", "errors", "created_at"},
		).AddRow(
			"rec-1", "post-1",
			[]byte(`{"id":"post-1","title":"Hiring is brutal"}`),
			[]byte(`[{"description":"cannot fill an engineering role after three months","severity":"medium","category":"hiring"}]`),
			[]byte(`[{"name":"role-fit sourcing service","score":61.5}]`),
			[]byte(`[]`),
			now,
		))

	rec, err := s.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "post-1", rec.SourceID)
	assert.Equal(t, "Hiring is brutal", rec.Document.Title)
	require.Len(t, rec.PainPoints, 1)
	assert.Equal(t, "hiring", rec.PainPoints[0].Category)
	require.Len(t, rec.Ideas, 1)
	assert.InDelta(t, 61.5, rec.Ideas[0].Score, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRecord_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO records .* ON CONFLICT \(source_id\)`).
		WithArgs(pgxmock.AnyArg(), "post-7", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := sampleRecord("post-7")
	err := s.InsertRecord(context.Background(), &rec)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProcessedSourceIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT source_id FROM records`).
		WillReturnRows(pgxmock.NewRows([]string{"source_id"}).
			AddRow("post-1").
			AddRow("post-2"))

	seen, err := s.ListProcessedSourceIDs(context.Background())
	require.NoError(t, err)
	assert.True(t, seen["post-1"])
	assert.True(t, seen["post-2"])
	assert.False(t, seen["post-3"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedFetch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM fetch_cache`).
		WithArgs("r/startups:new:25").
		WillReturnError(pgx.ErrNoRows)

	data, err := s.GetCachedFetch(context.Background(), "r/startups:new:25")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedFetch_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "r/startups:new:25", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedFetch(context.Background(), "r/startups:new:25", []byte(`{"data":{}}`), 15*time.Minute)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredFetches(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM fetch_cache WHERE expires_at`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredFetches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
