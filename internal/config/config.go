// Package config loads application configuration from yaml and the
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Blob     BlobConfig     `yaml:"blob" mapstructure:"blob"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Apify    ApifyConfig    `yaml:"apify" mapstructure:"apify"`
	ViewsAPI ViewsAPIConfig `yaml:"viewsapi" mapstructure:"viewsapi"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BlobConfig configures the document blob store.
type BlobConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // "fs" or "gcs"
	Root    string `yaml:"root" mapstructure:"root"`       // fs: base directory
	Bucket  string `yaml:"bucket" mapstructure:"bucket"`   // gcs: bucket name
}

// ProviderConfig selects the active fetch mode and its tuning knobs.
// The mode is resolved here and passed into the runner explicitly.
type ProviderConfig struct {
	Mode            string `yaml:"mode" mapstructure:"mode"` // "synthetic", "bulk", "peritem"
	CheckpointEvery int    `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
}

// ApifyConfig holds the bulk-async provider settings.
type ApifyConfig struct {
	Token            string `yaml:"token" mapstructure:"token"`
	ActorID          string `yaml:"actor_id" mapstructure:"actor_id"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPolls         int    `yaml:"max_polls" mapstructure:"max_polls"`
}

// ViewsAPIConfig holds the per-item provider settings.
type ViewsAPIConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	URLRetries    int     `yaml:"url_retries" mapstructure:"url_retries"`
}

// ServerConfig configures the HTTP entrypoint.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}

// Load reads configuration from ./config.yaml (optional) and the
// REELSIGHT_* environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.reelsight")

	// Environment
	v.SetEnvPrefix("REELSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reelsight.db")
	v.SetDefault("blob.backend", "fs")
	v.SetDefault("blob.root", "blobs")
	v.SetDefault("provider.mode", "synthetic")
	v.SetDefault("provider.checkpoint_every", 10)
	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.batch_size", 50)
	v.SetDefault("apify.poll_interval_secs", 5)
	v.SetDefault("apify.max_polls", 60)
	v.SetDefault("viewsapi.rate_per_second", 1)
	v.SetDefault("viewsapi.burst", 1)
	v.SetDefault("viewsapi.url_retries", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
