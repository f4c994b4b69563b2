package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so a developer's local
// config.yaml never leaks into assertions.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "reelsight.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "fs", cfg.Blob.Backend)
	assert.Equal(t, "blobs", cfg.Blob.Root)
	assert.Equal(t, "synthetic", cfg.Provider.Mode)
	assert.Equal(t, 10, cfg.Provider.CheckpointEvery)
	assert.Equal(t, "https://api.apify.com", cfg.Apify.BaseURL)
	assert.Equal(t, 50, cfg.Apify.BatchSize)
	assert.Equal(t, 5, cfg.Apify.PollIntervalSecs)
	assert.Equal(t, 60, cfg.Apify.MaxPolls)
	assert.Equal(t, float64(1), cfg.ViewsAPI.RatePerSecond)
	assert.Equal(t, 1, cfg.ViewsAPI.Burst)
	assert.Equal(t, 2, cfg.ViewsAPI.URLRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/reelsight
provider:
  mode: bulk
  checkpoint_every: 25
apify:
  actor_id: my-actor
  batch_size: 10
server:
  port: 9090
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/reelsight", cfg.Store.DatabaseURL)
	assert.Equal(t, "bulk", cfg.Provider.Mode)
	assert.Equal(t, 25, cfg.Provider.CheckpointEvery)
	assert.Equal(t, "my-actor", cfg.Apify.ActorID)
	assert.Equal(t, 10, cfg.Apify.BatchSize)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, "fs", cfg.Blob.Backend)
	assert.Equal(t, 60, cfg.Apify.MaxPolls)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: ["), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("REELSIGHT_PROVIDER_MODE", "peritem")
	t.Setenv("REELSIGHT_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "peritem", cfg.Provider.Mode)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestInitLogger_RejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shout", Format: "json"})
	assert.Error(t, err)
}
