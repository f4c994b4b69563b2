package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/reelsight/metrics-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'pending',
	total_links      INTEGER NOT NULL DEFAULT 0,
	processed_links  INTEGER NOT NULL DEFAULT 0,
	failed_links     INTEGER NOT NULL DEFAULT 0,
	paused_at        DATETIME,
	resume_from      INTEGER NOT NULL DEFAULT 0,
	source_ref       TEXT NOT NULL,
	result_ref       TEXT NOT NULL DEFAULT '',
	partial_ref      TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	pause_requested  INTEGER NOT NULL DEFAULT 0,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	cancel_reason    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const jobColumns = `id, status, total_links, processed_links, failed_links, paused_at,
	resume_from, source_ref, result_ref, partial_ref, error_message,
	pause_requested, cancel_requested, cancel_reason, created_at, updated_at, completed_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, sourceRef string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, source_ref, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.JobStatusPending), sourceRef, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		SourceRef: sourceRef,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
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
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ClaimForProcessing(ctx context.Context, id string, from model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, pause_requested = 0, paused_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusProcessing), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	return checkClaimed(res, id, from)
}

func (s *SQLiteStore) SetTotalLinks(ctx context.Context, id string, total int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET total_links = ?, updated_at = ? WHERE id = ?`,
		total, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set total links %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, processed, failed, resumeFrom int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed_links = ?, failed_links = ?, resume_from = ?, updated_at = ? WHERE id = ?`,
		processed, failed, resumeFrom, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update progress %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) SetPartialResult(ctx context.Context, id, ref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET partial_ref = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set partial result %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) MarkPaused(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, paused_at = ?, pause_requested = 0, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusPaused), now, now, id, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark paused %s", id)
	}
	return checkClaimed(res, id, model.JobStatusProcessing)
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id, resultRef string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result_ref = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusCompleted), resultRef, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark completed %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusFailed), message, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) RequestPause(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET pause_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		time.Now().UTC(), id, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: request pause %s", id)
	}
	return checkClaimed(res, id, model.JobStatusProcessing)
}

func (s *SQLiteStore) RequestCancel(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET cancel_requested = 1, cancel_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		reason, time.Now().UTC(), id, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: request cancel %s", id)
	}
	return checkClaimed(res, id, model.JobStatusProcessing)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var status string
	var pausedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &status, &j.TotalLinks, &j.ProcessedLinks, &j.FailedLinks, &pausedAt,
		&j.ResumeFromIndex, &j.SourceRef, &j.ResultRef, &j.PartialRef, &j.ErrorMessage,
		&j.PauseRequested, &j.CancelRequested, &j.CancelReason,
		&j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan job")
	}

	j.Status = model.JobStatus(status)
	if pausedAt.Valid {
		t := pausedAt.Time
		j.PausedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", id)
	}
	return nil
}

// checkClaimed maps a zero-row conditional update to ErrNotClaimable.
func checkClaimed(res sql.Result, id string, from model.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotClaimable, "job %s not in status %s", id, from)
	}
	return nil
}
