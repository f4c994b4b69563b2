package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/resilience"
	"github.com/reelsight/metrics-cli/pkg/viewsapi"
)

// pathSegments are the canonical URL forms tried in order when a lookup
// returns not-found. Posts are frequently reachable under a different
// segment than the one embedded in the spreadsheet.
var pathSegments = []string{"reel", "p", "tv"}

// PerItemConfig tunes the per-item provider.
type PerItemConfig struct {
	// URLRetries is how many alternative URL reconstructions to try
	// after the original form returns not-found.
	URLRetries int
}

// PerItem issues one rate-limited lookup per link, sequentially. The
// fine checkpoint granularity (every item) keeps externally observed
// progress steady, since per-item latency is user-visible.
type PerItem struct {
	client  viewsapi.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	cfg     PerItemConfig
}

// NewPerItem creates a per-item provider.
func NewPerItem(client viewsapi.Client, limiter *rate.Limiter, cfg PerItemConfig) *PerItem {
	if cfg.URLRetries < 0 {
		cfg.URLRetries = 0
	}
	return &PerItem{
		client:  client,
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
		cfg:     cfg,
	}
}

func (p *PerItem) Name() string { return string(ModePerItem) }

// Fetch looks up every link in order, checkpointing after each one.
func (p *PerItem) Fetch(ctx context.Context, links []*model.LinkRecord, cp Checkpoint) error {
	failed := 0

	for i, l := range links {
		outcome := p.fetchOne(ctx, l)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.Outcome = outcome
		if outcome.Kind == model.OutcomeError {
			failed++
		}

		if err := cp(ctx, i+1, failed); err != nil {
			return err
		}
	}
	return nil
}

// fetchOne classifies a single lookup into the three-way outcome, trying
// alternative URL reconstructions on not-found.
func (p *PerItem) fetchOne(ctx context.Context, l *model.LinkRecord) *model.MetricOutcome {
	for attempt, url := range p.urlVariants(l) {
		if err := p.limiter.Wait(ctx); err != nil {
			return model.ErrorOutcome()
		}

		var resp *viewsapi.LookupResponse
		err := p.breaker.Execute(ctx, func(ctx context.Context) error {
			var lookupErr error
			resp, lookupErr = p.client.Lookup(ctx, url)
			return lookupErr
		})

		var notFound *viewsapi.NotFoundError
		switch {
		case err == nil:
			if v, ok := resp.Views(); ok {
				return model.SuccessOutcome(v)
			}
			// The post exists but exposes no view count (e.g. an
			// image post).
			return model.NotAvailableOutcome()
		case errors.As(err, &notFound):
			zap.L().Debug("peritem: not found, trying next url form",
				zap.String("id", l.CanonicalID),
				zap.Int("attempt", attempt+1),
			)
			continue
		default:
			zap.L().Warn("peritem: lookup failed",
				zap.String("id", l.CanonicalID),
				zap.Error(err),
			)
			return model.ErrorOutcome()
		}
	}
	return model.NotAvailableOutcome()
}

// urlVariants returns the original link text followed by up to
// URLRetries canonical reconstructions under other path segments.
func (p *PerItem) urlVariants(l *model.LinkRecord) []string {
	variants := []string{l.RawText}
	for _, seg := range pathSegments {
		if len(variants) > p.cfg.URLRetries {
			break
		}
		u := fmt.Sprintf("https://www.instagram.com/%s/%s/", seg, l.CanonicalID)
		if u != l.RawText {
			variants = append(variants, u)
		}
	}
	return variants
}
