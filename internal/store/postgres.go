package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/reelsight/metrics-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store depends on. Tests
// substitute a pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. In Postgres the
// conditional claim update is a true compare-and-swap across workers.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists queries prepared on each new connection for
// the hot checkpoint path.
var preparedStatements = map[string]string{
	"claim_job":       `UPDATE jobs SET status = $1, pause_requested = FALSE, paused_at = NULL, updated_at = $2 WHERE id = $3 AND status = $4`,
	"update_progress": `UPDATE jobs SET processed_links = $1, failed_links = $2, resume_from = $3, updated_at = $4 WHERE id = $5`,
	"get_job":         `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
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

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'pending',
	total_links      INTEGER NOT NULL DEFAULT 0,
	processed_links  INTEGER NOT NULL DEFAULT 0,
	failed_links     INTEGER NOT NULL DEFAULT 0,
	paused_at        TIMESTAMPTZ,
	resume_from      INTEGER NOT NULL DEFAULT 0,
	source_ref       TEXT NOT NULL,
	result_ref       TEXT NOT NULL DEFAULT '',
	partial_ref      TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	pause_requested  BOOLEAN NOT NULL DEFAULT FALSE,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	cancel_reason    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, sourceRef string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, source_ref, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.JobStatusPending), sourceRef, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		SourceRef: sourceRef,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, "get_job", id)
	j, err := scanJob(row)
	if err != nil {
		// pgx reports missing rows with its own sentinel.
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
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
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ClaimForProcessing(ctx context.Context, id string, from model.JobStatus) error {
	tag, err := s.pool.Exec(ctx, "claim_job",
		string(model.JobStatusProcessing), time.Now().UTC(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "postgres: claim job %s", id)
	}
	return checkClaimedTag(tag, id, from)
}

func (s *PostgresStore) SetTotalLinks(ctx context.Context, id string, total int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET total_links = $1, updated_at = $2 WHERE id = $3`,
		total, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set total links %s", id)
	}
	return checkRowsAffectedTag(tag, id)
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, processed, failed, resumeFrom int) error {
	tag, err := s.pool.Exec(ctx, "update_progress",
		processed, failed, resumeFrom, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update progress %s", id)
	}
	return checkRowsAffectedTag(tag, id)
}

func (s *PostgresStore) SetPartialResult(ctx context.Context, id, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET partial_ref = $1, updated_at = $2 WHERE id = $3`,
		ref, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set partial result %s", id)
	}
	return checkRowsAffectedTag(tag, id)
}

func (s *PostgresStore) MarkPaused(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, paused_at = $2, pause_requested = FALSE, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.JobStatusPaused), now, now, id, string(model.JobStatusProcessing))
	if err != nil {
		return eris.Wrapf(err, "postgres: mark paused %s", id)
	}
	return checkClaimedTag(tag, id, model.JobStatusProcessing)
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id, resultRef string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, result_ref = $2, completed_at = $3, updated_at = $4 WHERE id = $5`,
		string(model.JobStatusCompleted), resultRef, now, now, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark completed %s", id)
	}
	return checkRowsAffectedTag(tag, id)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, completed_at = $3, updated_at = $4 WHERE id = $5`,
		string(model.JobStatusFailed), message, now, now, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark failed %s", id)
	}
	return checkRowsAffectedTag(tag, id)
}

func (s *PostgresStore) RequestPause(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET pause_requested = TRUE, updated_at = $1 WHERE id = $2 AND status = $3`,
		time.Now().UTC(), id, string(model.JobStatusProcessing))
	if err != nil {
		return eris.Wrapf(err, "postgres: request pause %s", id)
	}
	return checkClaimedTag(tag, id, model.JobStatusProcessing)
}

func (s *PostgresStore) RequestCancel(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET cancel_requested = TRUE, cancel_reason = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		reason, time.Now().UTC(), id, string(model.JobStatusProcessing))
	if err != nil {
		return eris.Wrapf(err, "postgres: request cancel %s", id)
	}
	return checkClaimedTag(tag, id, model.JobStatusProcessing)
}

func checkRowsAffectedTag(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", id)
	}
	return nil
}

func checkClaimedTag(tag pgconn.CommandTag, id string, from model.JobStatus) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotClaimable, "job %s not in status %s", id, from)
	}
	return nil
}

