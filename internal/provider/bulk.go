package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/plan"
	"github.com/reelsight/metrics-cli/pkg/apify"
)

// BulkConfig tunes the bulk-async provider.
type BulkConfig struct {
	ActorID      string
	BatchSize    int
	PollInterval time.Duration
	MaxPolls     int
}

// Bulk submits link batches to an Apify actor run, polls the run to
// completion, and joins dataset items back to links by canonical id.
// Parallelism lives inside the external actor; from here the run is a
// single polled task.
type Bulk struct {
	client apify.Client
	cfg    BulkConfig
}

// NewBulk creates a bulk-async provider.
func NewBulk(client apify.Client, cfg BulkConfig) *Bulk {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	return &Bulk{client: client, cfg: cfg}
}

func (b *Bulk) Name() string { return string(ModeBulk) }

// Fetch processes links in sub-batches, checkpointing once per batch.
// A failed batch submission or fetch degrades every link in that batch
// to an Error outcome; only an exhausted polling budget aborts the job.
func (b *Bulk) Fetch(ctx context.Context, links []*model.LinkRecord, cp Checkpoint) error {
	done, failed := 0, 0

	for start := 0; start < len(links); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(links))
		batch := links[start:end]

		batchFailed, err := b.fetchBatch(ctx, batch)
		if err != nil {
			return err
		}

		done += len(batch)
		failed += batchFailed
		if err := cp(ctx, done, failed); err != nil {
			return err
		}
	}
	return nil
}

// fetchBatch runs one actor run for a sub-batch and returns how many
// links in it failed.
func (b *Bulk) fetchBatch(ctx context.Context, batch []*model.LinkRecord) (int, error) {
	urls := make([]string, len(batch))
	for i, l := range batch {
		urls[i] = l.RawText
	}

	run, err := b.client.StartRun(ctx, b.cfg.ActorID, apify.RunInput{
		DirectURLs:   urls,
		ResultsLimit: len(urls),
	})
	if err != nil {
		zap.L().Error("bulk: batch submission failed", zap.Int("size", len(batch)), zap.Error(err))
		return markAllErrored(batch), nil
	}

	run, err = b.pollRun(ctx, run)
	if err != nil {
		return 0, err
	}
	if run.Status != apify.RunStatusSucceeded {
		zap.L().Error("bulk: run did not succeed", zap.String("run_id", run.ID), zap.String("status", run.Status))
		return markAllErrored(batch), nil
	}

	items, err := b.client.DatasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		zap.L().Error("bulk: dataset fetch failed", zap.String("dataset_id", run.DefaultDatasetID), zap.Error(err))
		return markAllErrored(batch), nil
	}

	return joinResults(batch, items), nil
}

// pollRun waits for the run to finish with a bounded number of
// fixed-interval attempts.
func (b *Bulk) pollRun(ctx context.Context, run *apify.Run) (*apify.Run, error) {
	for attempt := 0; attempt < b.cfg.MaxPolls; attempt++ {
		if run.Finished() {
			return run, nil
		}

		timer := time.NewTimer(b.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrap(ctx.Err(), "bulk: poll cancelled")
		case <-timer.C:
		}

		var err error
		run, err = b.client.GetRun(ctx, run.ID)
		if err != nil {
			return nil, eris.Wrap(err, "bulk: poll run")
		}
	}
	return nil, eris.Wrapf(ErrPollTimeout, "bulk: run %s still %s after %d polls", run.ID, run.Status, b.cfg.MaxPolls)
}

// joinResults matches dataset items to links via canonical id. Items
// without a view count and links without a matching item become Error
// outcomes. Multiple cells sharing one id all receive its result.
func joinResults(batch []*model.LinkRecord, items []apify.DatasetItem) int {
	views := make(map[string]int64, len(items))
	for i := range items {
		it := &items[i]
		if it.Error != "" {
			continue
		}
		id, ok := plan.CanonicalID(it.SourceURL())
		if !ok {
			continue
		}
		if v, ok := it.ViewCount(); ok {
			views[id] = v
		}
	}

	failed := 0
	for _, l := range batch {
		if v, ok := views[l.CanonicalID]; ok {
			l.Outcome = model.SuccessOutcome(v)
		} else {
			l.Outcome = model.ErrorOutcome()
			failed++
		}
	}
	return failed
}

func markAllErrored(batch []*model.LinkRecord) int {
	for _, l := range batch {
		l.Outcome = model.ErrorOutcome()
	}
	return len(batch)
}
