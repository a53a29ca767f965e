package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL UNIQUE,
	document    TEXT NOT NULL,
	pain_points TEXT,
	ideas       TEXT,
	errors      TEXT,
	top_score   REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_source_id ON records(source_id);
CREATE INDEX IF NOT EXISTS idx_records_top_score ON records(top_score DESC);

CREATE TABLE IF NOT EXISTS fetch_cache (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL UNIQUE,
	data       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_key ON fetch_cache(cache_key);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertRecord(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	docJSON, painsJSON, ideasJSON, errsJSON, err := marshalRecord(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, source_id, document, pain_points, ideas, errors, top_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
			document = excluded.document, pain_points = excluded.pain_points,
			ideas = excluded.ideas, errors = excluded.errors, top_score = excluded.top_score`,
		rec.ID, rec.SourceID, string(docJSON), string(painsJSON),
		string(ideasJSON), string(errsJSON), topScore(rec), rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
}

func (s *SQLiteStore) InsertRecords(ctx context.Context, recs []model.Record) (int64, error) {
	var n int64
	for i := range recs {
		if err := s.InsertRecord(ctx, &recs[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE id = ?`,
		id,
	)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrRecordNotFound, "%s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := `SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE 1=1`
	var args []any

	if filter.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if filter.MinScore > 0 {
		query += ` AND top_score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) ListProcessedSourceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id FROM records`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source ids")
	}
	defer rows.Close() //nolint:errcheck

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source id")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "sqlite: list source ids iterate")
}

func (s *SQLiteStore) GetCachedFetch(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM fetch_cache
		 WHERE cache_key = ? AND expires_at > ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		key, time.Now().UTC(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached fetch")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedFetch(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (id, cache_key, data, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			data = excluded.data, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		id, key, string(data), now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached fetch")
}

func (s *SQLiteStore) DeleteExpiredFetches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired fetches")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func scanSQLiteRecord(row scannable) (*model.Record, error) {
	var rec model.Record
	var docJSON string
	var painsJSON, ideasJSON, errsJSON sql.NullString

	if err := row.Scan(&rec.ID, &rec.SourceID, &docJSON, &painsJSON, &ideasJSON, &errsJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(docJSON), &rec.Document); err != nil {
		return nil, eris.Wrap(err, "unmarshal document")
	}
	if painsJSON.Valid && painsJSON.String != "" {
		if err := json.Unmarshal([]byte(painsJSON.String), &rec.PainPoints); err != nil {
			return nil, eris.Wrap(err, "unmarshal pain points")
		}
	}
	if ideasJSON.Valid && ideasJSON.String != "" {
		if err := json.Unmarshal([]byte(ideasJSON.String), &rec.Ideas); err != nil {
			return nil, eris.Wrap(err, "unmarshal ideas")
		}
	}
	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &rec.Errors); err != nil {
			return nil, eris.Wrap(err, "unmarshal errors")
		}
	}
	return &rec, nil
}
