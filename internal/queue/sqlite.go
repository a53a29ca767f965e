package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

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
		return nil, eris.Wrap(err, "queue sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "queue sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS queue_jobs (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   DATETIME NOT NULL,
	started_at   DATETIME,
	completed_at DATETIME,
	payload      TEXT,
	result       TEXT,
	error        TEXT,
	expires_at   DATETIME
);

CREATE TABLE IF NOT EXISTS queue_pending (
	job_id   TEXT PRIMARY KEY REFERENCES queue_jobs(id),
	position INTEGER NOT NULL
);

-- Single-row marker: id is constrained to 1 so at most one job can ever be
-- marked processing.
CREATE TABLE IF NOT EXISTS queue_processing (
	id     INTEGER PRIMARY KEY CHECK (id = 1),
	job_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_jobs_status ON queue_jobs(status);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_expires_at ON queue_jobs(expires_at);
CREATE INDEX IF NOT EXISTS idx_queue_pending_position ON queue_pending(position);
`

// Migrate creates the queue tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "queue sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, created_at, started_at, completed_at, payload, result, error, expires_at
		 FROM queue_jobs WHERE id = ?`, id,
	)
	return scanJob(row)
}

func (s *SQLiteStore) PutJob(ctx context.Context, job *model.Job) error {
	var result sql.NullString
	if job.Result != nil {
		encoded, err := encodeResult(job.Result)
		if err != nil {
			return eris.Wrap(err, "queue sqlite: encode result")
		}
		result = sql.NullString{String: encoded, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_jobs (id, type, status, created_at, started_at, completed_at, payload, result, error, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			result = excluded.result,
			error = excluded.error,
			expires_at = excluded.expires_at`,
		job.ID, string(job.Type), string(job.Status), job.CreatedAt.UTC(),
		nullTime(job.StartedAt), nullTime(job.CompletedAt),
		nullString(string(job.Payload)), result, nullString(job.Error),
		nullTime(job.ExpiresAt),
	)
	return eris.Wrapf(err, "queue sqlite: put job %s", job.ID)
}

func (s *SQLiteStore) PushPending(ctx context.Context, id string) error {
	// Front of the list = highest position; OldestPending reads the minimum.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_pending (job_id, position)
		 VALUES (?, COALESCE((SELECT MAX(position) FROM queue_pending), 0) + 1)`,
		id,
	)
	return eris.Wrapf(err, "queue sqlite: push pending %s", id)
}

func (s *SQLiteStore) OldestPending(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id FROM queue_pending ORDER BY position ASC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "queue sqlite: oldest pending")
	}
	return id, nil
}

func (s *SQLiteStore) RemovePending(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_pending WHERE job_id = ?`, id)
	return eris.Wrapf(err, "queue sqlite: remove pending %s", id)
}

func (s *SQLiteStore) Pending(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id FROM queue_pending ORDER BY position ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "queue sqlite: list pending")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "queue sqlite: scan pending")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "queue sqlite: iterate pending")
}

func (s *SQLiteStore) Processing(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id FROM queue_processing WHERE id = 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "queue sqlite: processing marker")
	}
	return id, nil
}

func (s *SQLiteStore) SetProcessing(ctx context.Context, id string) error {
	// The single-row primary key rejects a second marker; only a marker
	// already pointing at this job may be overwritten.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_processing (id, job_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET job_id = excluded.job_id
		 WHERE queue_processing.job_id = excluded.job_id`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "queue sqlite: set processing %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "queue sqlite: set processing rows")
	}
	if n == 0 {
		return eris.Errorf("queue sqlite: another job already processing")
	}
	return nil
}

func (s *SQLiteStore) ClearProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_processing WHERE id = 1 AND job_id = ?`, id,
	)
	return eris.Wrapf(err, "queue sqlite: clear processing %s", id)
}

func (s *SQLiteStore) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_jobs
		 WHERE status IN ('completed', 'failed') AND expires_at IS NOT NULL AND expires_at <= ?`,
		now.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "queue sqlite: prune expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "queue sqlite: prune rows affected")
	}
	return int(n), nil
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var (
		job         model.Job
		jobType     string
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		payload     sql.NullString
		result      sql.NullString
		errMsg      sql.NullString
		expiresAt   sql.NullTime
	)
	err := row.Scan(&job.ID, &jobType, &status, &job.CreatedAt,
		&startedAt, &completedAt, &payload, &result, &errMsg, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue sqlite: scan job")
	}

	job.Type = model.JobType(jobType)
	job.Status = model.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if result.Valid {
		decoded, err := decodeResult(result.String)
		if err != nil {
			return nil, eris.Wrap(err, "queue sqlite: decode result")
		}
		job.Result = decoded
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		job.ExpiresAt = &t
	}
	return &job, nil
}

func encodeResult(result []string) (string, error) {
	encoded, err := json.Marshal(result)
	return string(encoded), err
}

func decodeResult(encoded string) ([]string, error) {
	var result []string
	err := json.Unmarshal([]byte(encoded), &result)
	return result, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
