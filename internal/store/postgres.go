package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/db"
	"github.com/sells-group/opportunity-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_record":    `INSERT INTO records (id, source_id, document, pain_points, ideas, errors, top_score, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_record":       `SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE id = $1`,
	"get_cached_fetch": `SELECT data FROM fetch_cache WHERE cache_key = $1 AND expires_at > now() ORDER BY fetched_at DESC LIMIT 1`,
	"set_cached_fetch": `INSERT INTO fetch_cache (id, cache_key, data, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (cache_key) DO UPDATE SET data = $3, fetched_at = $4, expires_at = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id   TEXT NOT NULL UNIQUE,
	document    JSONB NOT NULL,
	pain_points JSONB,
	ideas       JSONB,
	errors      JSONB,
	top_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_source_id ON records(source_id);
CREATE INDEX IF NOT EXISTS idx_records_top_score ON records(top_score DESC);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at DESC);

CREATE TABLE IF NOT EXISTS fetch_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cache_key  TEXT NOT NULL UNIQUE,
	data       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_key ON fetch_cache(cache_key);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertRecord(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	docJSON, painsJSON, ideasJSON, errsJSON, err := marshalRecord(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, source_id, document, pain_points, ideas, errors, top_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (source_id) DO UPDATE SET
			document = $3, pain_points = $4, ideas = $5, errors = $6, top_score = $7`,
		rec.ID, rec.SourceID, docJSON, painsJSON, ideasJSON, errsJSON,
		topScore(rec), rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert record %s", rec.ID)
}

// InsertRecords bulk-upserts records via the COPY-into-temp-table path.
func (s *PostgresStore) InsertRecords(ctx context.Context, recs []model.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(recs))
	now := time.Now().UTC()
	for i := range recs {
		rec := &recs[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		docJSON, painsJSON, ideasJSON, errsJSON, err := marshalRecord(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal record %s", rec.ID)
		}
		rows = append(rows, []any{
			rec.ID, rec.SourceID, docJSON, painsJSON, ideasJSON, errsJSON,
			topScore(rec), rec.CreatedAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "records",
		Columns:      []string{"id", "source_id", "document", "pain_points", "ideas", "errors", "top_score", "created_at"},
		ConflictKeys: []string{"source_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk insert records")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE id = $1`,
		id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrRecordNotFound, "%s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := `SELECT id, source_id, document, pain_points, ideas, errors, created_at FROM records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SourceID != "" {
		query += fmt.Sprintf(` AND source_id = $%d`, argIdx)
		args = append(args, filter.SourceID)
		argIdx++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND top_score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) ListProcessedSourceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_id FROM records`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source ids")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source id")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "postgres: list source ids iterate")
}

func (s *PostgresStore) GetCachedFetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM fetch_cache
		 WHERE cache_key = $1 AND expires_at > now()
		 ORDER BY fetched_at DESC LIMIT 1`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached fetch")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedFetch(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_cache (id, cache_key, data, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cache_key) DO UPDATE SET data = $3, fetched_at = $4, expires_at = $5`,
		id, key, data, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached fetch")
}

func (s *PostgresStore) DeleteExpiredFetches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired fetches")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func marshalRecord(rec *model.Record) (doc, pains, ideas, errs []byte, err error) {
	if doc, err = json.Marshal(rec.Document); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "marshal document")
	}
	if pains, err = json.Marshal(rec.PainPoints); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "marshal pain points")
	}
	if ideas, err = json.Marshal(rec.Ideas); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "marshal ideas")
	}
	if errs, err = json.Marshal(rec.Errors); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "marshal errors")
	}
	return doc, pains, ideas, errs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var rec model.Record
	var docJSON, painsJSON, ideasJSON, errsJSON []byte

	if err := row.Scan(&rec.ID, &rec.SourceID, &docJSON, &painsJSON, &ideasJSON, &errsJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(docJSON, &rec.Document); err != nil {
		return nil, eris.Wrap(err, "unmarshal document")
	}
	if len(painsJSON) > 0 {
		if err := json.Unmarshal(painsJSON, &rec.PainPoints); err != nil {
			return nil, eris.Wrap(err, "unmarshal pain points")
		}
	}
	if len(ideasJSON) > 0 {
		if err := json.Unmarshal(ideasJSON, &rec.Ideas); err != nil {
			return nil, eris.Wrap(err, "unmarshal ideas")
		}
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &rec.Errors); err != nil {
			return nil, eris.Wrap(err, "unmarshal errors")
		}
	}
	return &rec, nil
}
