package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/reelsight/metrics-cli/internal/blob"
	"github.com/reelsight/metrics-cli/internal/provider"
	"github.com/reelsight/metrics-cli/internal/store"
	"github.com/reelsight/metrics-cli/pkg/apify"
	"github.com/reelsight/metrics-cli/pkg/viewsapi"
)

// initStore opens the configured job record store and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initBlob opens the configured blob store backend.
func initBlob(ctx context.Context) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "gcs":
		return blob.NewGCS(ctx, cfg.Blob.Bucket)
	case "fs", "":
		return blob.NewFS(cfg.Blob.Root)
	default:
		return nil, eris.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}

// initProvider resolves the active fetch mode from configuration. The
// result is passed to the runner explicitly so no component reads the
// mode from ambient state.
func initProvider(modeOverride string) (provider.Provider, error) {
	modeStr := cfg.Provider.Mode
	if modeOverride != "" {
		modeStr = modeOverride
	}
	mode, err := provider.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	switch mode {
	case provider.ModeSynthetic:
		return provider.NewSynthetic(cfg.Provider.CheckpointEvery), nil

	case provider.ModeBulk:
		client := apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL))
		return provider.NewBulk(client, provider.BulkConfig{
			ActorID:      cfg.Apify.ActorID,
			BatchSize:    cfg.Apify.BatchSize,
			PollInterval: time.Duration(cfg.Apify.PollIntervalSecs) * time.Second,
			MaxPolls:     cfg.Apify.MaxPolls,
		}), nil

	case provider.ModePerItem:
		client := viewsapi.NewClient(cfg.ViewsAPI.Key, viewsapi.WithBaseURL(cfg.ViewsAPI.BaseURL))
		limiter := rate.NewLimiter(rate.Limit(cfg.ViewsAPI.RatePerSecond), max(cfg.ViewsAPI.Burst, 1))
		return provider.NewPerItem(client, limiter, provider.PerItemConfig{
			URLRetries: cfg.ViewsAPI.URLRetries,
		}), nil
	}
	return nil, eris.Errorf("unhandled provider mode %q", mode)
}
