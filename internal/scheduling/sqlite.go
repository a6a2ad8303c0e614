package scheduling

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists jobs to the shared SQLite file alongside the
// document store, grounded on internal/docstore/sqlite.go's raw-SQL
// CRUD idiom and internal/jobs/cockroach.go's column layout (states,
// result/error strings, a JSON metadata blob).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed Store at
// path and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(jobsSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const jobsSchemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	paused_at DATETIME,
	ended_at DATETIME,
	result TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	seq INTEGER
);
`

func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	metadata, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, status, created_at, started_at, paused_at, ended_at, result, error, metadata, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM jobs))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			started_at = excluded.started_at,
			paused_at = excluded.paused_at,
			ended_at = excluded.ended_at,
			result = excluded.result,
			error = excluded.error,
			metadata = excluded.metadata`,
		job.ID, job.Name, string(job.Status), job.CreatedAt,
		nullableTime(job.StartedAt), nullableTime(job.PausedAt), nullableTime(job.EndedAt),
		job.Result, job.Error, metadata,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, job *Job) error {
	return s.Create(ctx, job)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, created_at, started_at, paused_at, ended_at, result, error, metadata
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as "no limit"
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, created_at, started_at, paused_at, ended_at, result, error, metadata
		FROM jobs ORDER BY seq LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN (?, ?, ?) AND ended_at IS NOT NULL AND ended_at < ?`,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner abstracts over *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status string
	var startedAt, pausedAt, endedAt sql.NullTime
	var metadata sql.NullString
	if err := row.Scan(&job.ID, &job.Name, &status, &job.CreatedAt,
		&startedAt, &pausedAt, &endedAt, &job.Result, &job.Error, &metadata); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.StartedAt = startedAt.Time
	job.PausedAt = pausedAt.Time
	job.EndedAt = endedAt.Time
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &job.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal job metadata: %w", err)
		}
	}
	return &job, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal job metadata: %w", err)
	}
	return string(data), nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
