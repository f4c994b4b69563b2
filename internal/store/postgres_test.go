package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsight/metrics-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`get_job`).
		WithArgs("nonexistent-job").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nonexistent-job")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimForProcessing_Claims(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`claim_job`).
		WithArgs(string(model.JobStatusProcessing), pgxmock.AnyArg(), "job-1", string(model.JobStatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ClaimForProcessing(context.Background(), "job-1", model.JobStatusPending)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimForProcessing_NotClaimable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`claim_job`).
		WithArgs(string(model.JobStatusProcessing), pgxmock.AnyArg(), "job-1", string(model.JobStatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ClaimForProcessing(context.Background(), "job-1", model.JobStatusPending)
	assert.ErrorIs(t, err, ErrNotClaimable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProgress(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`update_progress`).
		WithArgs(12, 3, 12, pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateProgress(context.Background(), "job-1", 12, 3, 12)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProgress_MissingJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`update_progress`).
		WithArgs(5, 0, 5, pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProgress(context.Background(), "gone", 5, 0, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
