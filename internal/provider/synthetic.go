package provider

import (
	"context"
	"math/rand/v2"

	"github.com/reelsight/metrics-cli/internal/model"
)

// viewBuckets weight the synthetic distribution toward small counts,
// mirroring how real view counts skew.
var viewBuckets = []struct {
	weight   float64
	min, max int64
}{
	{0.40, 1_000, 10_000},
	{0.30, 10_000, 100_000},
	{0.20, 100_000, 1_000_000},
	{0.10, 1_000_000, 10_000_000},
}

// Synthetic generates view counts locally with no network calls. Used
// for development and for exercising the full job lifecycle in tests.
type Synthetic struct {
	checkpointEvery int
	randInt64N      func(int64) int64
	randFloat64     func() float64
}

// NewSynthetic creates a synthetic provider checkpointing every n items.
func NewSynthetic(checkpointEvery int) *Synthetic {
	if checkpointEvery <= 0 {
		checkpointEvery = 10
	}
	return &Synthetic{
		checkpointEvery: checkpointEvery,
		randInt64N:      rand.Int64N,
		randFloat64:     rand.Float64,
	}
}

func (s *Synthetic) Name() string { return string(ModeSynthetic) }

// Fetch assigns a weighted-random view count to every link, invoking the
// checkpoint every checkpointEvery items and on the final item.
func (s *Synthetic) Fetch(ctx context.Context, links []*model.LinkRecord, cp Checkpoint) error {
	for i, l := range links {
		l.Outcome = model.SuccessOutcome(s.randomViews())

		if (i+1)%s.checkpointEvery == 0 || i == len(links)-1 {
			if err := cp(ctx, i+1, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Synthetic) randomViews() int64 {
	roll := s.randFloat64()
	acc := 0.0
	for _, b := range viewBuckets {
		acc += b.weight
		if roll < acc {
			return b.min + s.randInt64N(b.max-b.min)
		}
	}
	last := viewBuckets[len(viewBuckets)-1]
	return last.min + s.randInt64N(last.max-last.min)
}
