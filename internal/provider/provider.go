// Package provider implements the pluggable view-count fetch strategies.
// Each provider fills MetricOutcome on the link records it is handed and
// reports progress through a Checkpoint callback at its own granularity.
package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/reelsight/metrics-cli/internal/model"
)

// Mode identifies a fetch strategy. The active mode is configuration
// and is passed into the runner explicitly at invocation time.
type Mode string

const (
	ModeSynthetic Mode = "synthetic"
	ModeBulk      Mode = "bulk"
	ModePerItem   Mode = "peritem"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSynthetic, ModeBulk, ModePerItem:
		return Mode(s), nil
	}
	return "", eris.Errorf("provider: unknown mode %q", s)
}

// Checkpoint persists progress after a batch boundary. done and failed
// are cumulative counts for the current Fetch invocation. A non-nil
// return (pause, cancel, storage failure) stops fetching immediately and
// is propagated to the caller unchanged.
type Checkpoint func(ctx context.Context, done, failed int) error

// ErrPollTimeout is returned when a bulk provider exhausts its polling
// budget. Unlike per-link failures it is fatal to the whole job.
var ErrPollTimeout = eris.New("provider: polling budget exhausted")

// Provider fetches view counts for a slice of placed link records,
// setting Outcome on each. Per-link failures must degrade to Error
// outcomes; only systemic failures may be returned as errors.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, links []*model.LinkRecord, cp Checkpoint) error
}
