// Package store persists job records. Implementations must support the
// conditional status transition used to claim a job, since cooperative
// locking via a plain status write is unsafe under concurrent
// invocation.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/reelsight/metrics-cli/internal/model"
)

// ErrNotFound is returned when no job exists with the given id.
var ErrNotFound = eris.New("store: job not found")

// ErrNotClaimable is returned when a conditional transition matched no
// row: the job is missing, already claimed, or in the wrong state.
var ErrNotClaimable = eris.New("store: job not claimable")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the job record persistence interface. All mutations are
// single-row, last-writer-wins updates keyed by job id; no multi-field
// atomicity is guaranteed beyond one update call.
type Store interface {
	// Lifecycle
	CreateJob(ctx context.Context, sourceRef string) (*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// ClaimForProcessing atomically transitions the job from the given
	// status to processing, clearing any stale pause request. It
	// returns ErrNotClaimable if the job is not in that status, which
	// is how concurrent re-invocation of one job is prevented.
	ClaimForProcessing(ctx context.Context, id string, from model.JobStatus) error

	// Checkpointing
	SetTotalLinks(ctx context.Context, id string, total int) error
	UpdateProgress(ctx context.Context, id string, processed, failed, resumeFrom int) error
	SetPartialResult(ctx context.Context, id, ref string) error

	// Terminal and paused transitions
	MarkPaused(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, resultRef string) error
	MarkFailed(ctx context.Context, id, message string) error

	// Control flags, observed by the runner at checkpoint boundaries.
	// RequestPause is legal only while processing; RequestCancel also
	// while processing (a paused job is cancelled via MarkFailed since
	// no runner is observing its flags).
	RequestPause(ctx context.Context, id string) error
	RequestCancel(ctx context.Context, id, reason string) error

	Migrate(ctx context.Context) error
	Close() error
}
