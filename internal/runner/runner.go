// Package runner drives one annotation job end to end: download, plan,
// fetch with checkpoints, materialize, upload. Exactly one runner
// invocation owns a job at a time, enforced by the store's conditional
// claim; pause and cancel are cooperative and observed only at
// checkpoint boundaries so an in-flight provider request always
// completes.
package runner

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/blob"
	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/plan"
	"github.com/reelsight/metrics-cli/internal/provider"
	"github.com/reelsight/metrics-cli/internal/resilience"
	"github.com/reelsight/metrics-cli/internal/sheet"
	"github.com/reelsight/metrics-cli/internal/store"
)

// errPauseRequested propagates a pause request out of the fetch loop.
var errPauseRequested = eris.New("runner: pause requested")

// cancelError propagates a cancel request with its caller-supplied reason.
type cancelError struct {
	reason string
}

func (e *cancelError) Error() string {
	return fmt.Sprintf("runner: cancelled: %s", e.reason)
}

// Runner executes jobs against a record store and a blob store.
type Runner struct {
	store store.Store
	blobs blob.Store
	retry resilience.RetryConfig
}

// New creates a Runner. The retry config governs every checkpoint write.
func New(st store.Store, blobs blob.Store) *Runner {
	retry := resilience.DefaultRetryConfig()
	// Checkpoint writes retry on any store error except a missing job.
	retry.ShouldRetry = func(err error) bool {
		return !eris.Is(err, store.ErrNotFound)
	}
	retry.OnRetry = resilience.RetryLogger("store", "checkpoint")
	return &Runner{store: st, blobs: blobs, retry: retry}
}

// Run starts or resumes the job, driving it to completed, paused, or
// failed. It first claims the job with an atomic conditional status
// update (pending→processing, or paused→processing on resume); a job
// already claimed elsewhere returns store.ErrNotClaimable.
//
// The provider is chosen by the caller from configuration and passed in
// explicitly.
func (r *Runner) Run(ctx context.Context, jobID string, p provider.Provider) error {
	if err := r.claim(ctx, jobID); err != nil {
		return err
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		// The claim already moved the job to processing, so a load
		// failure must mark it failed or it stays stuck there.
		return r.fail(ctx, jobID, eris.Wrapf(err, "runner: load job %s", jobID))
	}

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("provider", p.Name()))
	log.Info("runner: job claimed",
		zap.Int("resume_from", job.ResumeFromIndex),
		zap.String("source_ref", job.SourceRef),
	)

	doc, placed, err := r.prepare(ctx, job)
	if err != nil {
		return r.fail(ctx, job.ID, err)
	}
	defer doc.Close()

	// A resumed job skips links already processed rather than repeating
	// provider calls; the plan is deterministic so indexes line up.
	base := job.ResumeFromIndex
	if base > len(placed) {
		base = len(placed)
	}
	baseFailed := job.FailedLinks
	remaining := placed[base:]

	cp := r.checkpointFunc(job.ID, base, baseFailed)

	fetchErr := p.Fetch(ctx, remaining, cp)

	switch {
	case fetchErr == nil:
		return r.complete(ctx, job, doc, placed, log)
	case eris.Is(fetchErr, errPauseRequested):
		return r.pause(ctx, job, doc, placed, log)
	default:
		var cancel *cancelError
		if eris.As(fetchErr, &cancel) {
			r.materializePartial(ctx, job, doc, placed, log)
			return r.fail(ctx, job.ID, eris.Errorf("cancelled: %s", cancel.reason))
		}
		// Systemic failure: provider timeout, storage or record-store
		// error, context cancellation. Per-link failures never reach
		// here; the provider absorbs them into Error outcomes.
		r.materializePartial(ctx, job, doc, placed, log)
		return r.fail(ctx, job.ID, fetchErr)
	}
}

// claim transitions the job to processing, trying the submit path first
// and the resume path second.
func (r *Runner) claim(ctx context.Context, jobID string) error {
	err := r.store.ClaimForProcessing(ctx, jobID, model.JobStatusPending)
	if err == nil {
		return nil
	}
	if !eris.Is(err, store.ErrNotClaimable) {
		return eris.Wrapf(err, "runner: claim job %s", jobID)
	}
	if resumeErr := r.store.ClaimForProcessing(ctx, jobID, model.JobStatusPaused); resumeErr == nil {
		return nil
	}
	return eris.Wrapf(err, "runner: job %s not claimable", jobID)
}

// prepare downloads the working document and builds the placement plan.
// A resumed job works on its partial artifact so metrics written before
// the pause survive into the final result.
func (r *Runner) prepare(ctx context.Context, job *model.Job) (*sheet.Document, []*model.LinkRecord, error) {
	ref := job.SourceRef
	if job.ResumeFromIndex > 0 && job.PartialRef != "" {
		ref = job.PartialRef
	}

	data, err := r.blobs.Download(ctx, ref)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "runner: download %s", ref)
	}

	doc, err := sheet.Open(data)
	if err != nil {
		return nil, nil, err
	}

	res, err := plan.Build(doc)
	if err != nil {
		doc.Close()
		return nil, nil, err
	}
	placed := res.Placed()

	if err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.SetTotalLinks(ctx, job.ID, len(placed))
	}); err != nil {
		doc.Close()
		return nil, nil, eris.Wrap(err, "runner: persist total links")
	}

	return doc, placed, nil
}

// checkpointFunc builds the provider's checkpoint callback. Each call
// persists cumulative progress through the shared retry helper and then
// observes the control flags, so pause and cancel take effect at the
// next boundary and never mid-request.
func (r *Runner) checkpointFunc(jobID string, base, baseFailed int) provider.Checkpoint {
	return func(ctx context.Context, done, failed int) error {
		processed := base + done
		totalFailed := baseFailed + failed

		if err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
			return r.store.UpdateProgress(ctx, jobID, processed, totalFailed, processed)
		}); err != nil {
			return eris.Wrap(err, "runner: checkpoint write")
		}

		cur, err := r.store.GetJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "runner: checkpoint read")
		}
		if cur.CancelRequested {
			return &cancelError{reason: cur.CancelReason}
		}
		if cur.PauseRequested {
			return errPauseRequested
		}
		return ctx.Err()
	}
}

func (r *Runner) complete(ctx context.Context, job *model.Job, doc *sheet.Document, placed []*model.LinkRecord, log *zap.Logger) error {
	data, err := materialize(doc, placed)
	if err != nil {
		return r.fail(ctx, job.ID, err)
	}

	resultRef := fmt.Sprintf("results/%s.xlsx", job.ID)
	if err := r.blobs.Upload(ctx, resultRef, data); err != nil {
		return r.fail(ctx, job.ID, eris.Wrap(err, "runner: upload result"))
	}

	if err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.MarkCompleted(ctx, job.ID, resultRef)
	}); err != nil {
		return eris.Wrap(err, "runner: mark completed")
	}

	log.Info("runner: job completed", zap.String("result_ref", resultRef))
	return nil
}

func (r *Runner) pause(ctx context.Context, job *model.Job, doc *sheet.Document, placed []*model.LinkRecord, log *zap.Logger) error {
	r.materializePartial(ctx, job, doc, placed, log)

	if err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.MarkPaused(ctx, job.ID)
	}); err != nil {
		return eris.Wrap(err, "runner: mark paused")
	}

	log.Info("runner: job paused")
	return nil
}

// materializePartial uploads a document reflecting the work done so far,
// best-effort: a paused or failed job should still yield a downloadable
// artifact, but failing to produce one must not mask the primary outcome.
func (r *Runner) materializePartial(ctx context.Context, job *model.Job, doc *sheet.Document, placed []*model.LinkRecord, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	data, err := materialize(doc, placed)
	if err != nil {
		log.Warn("runner: partial materialization failed", zap.Error(err))
		return
	}

	partialRef := fmt.Sprintf("partials/%s.xlsx", job.ID)
	if err := r.blobs.Upload(ctx, partialRef, data); err != nil {
		log.Warn("runner: partial upload failed", zap.Error(err))
		return
	}

	if err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.SetPartialResult(ctx, job.ID, partialRef)
	}); err != nil {
		log.Warn("runner: partial ref write failed", zap.Error(err))
	}
}

// materialize writes every fetched outcome into the document and
// serializes it.
func materialize(doc *sheet.Document, placed []*model.LinkRecord) ([]byte, error) {
	if err := sheet.WriteOutcomes(doc, placed); err != nil {
		return nil, err
	}
	return doc.Bytes()
}

// fail marks the job failed with the captured message and returns the
// original error. The status write must survive the cancellation that
// may have caused the failure.
func (r *Runner) fail(ctx context.Context, jobID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := r.store.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		zap.L().Error("runner: mark failed did not persist",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
	return cause
}
