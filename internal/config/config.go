// Package config loads tftstats settings from the environment. Variables use
// the TFTSTATS_ prefix; a .env file is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
)

// Prefix is the environment variable prefix.
const Prefix = "tftstats"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	// RiotAPIKey authenticates upstream requests. Also read from RIOT_API_KEY.
	// Only commands that ingest require it.
	RiotAPIKey string `envconfig:"RIOT_API_KEY"`

	// Address is the listen address of the HTTP API.
	Address string `default:":8080"`

	// StoreDriver selects the persistence backend: memory, redis, postgres or sqlite.
	StoreDriver string `split_words:"true" default:"memory"`

	// PostgresDSN is used by the postgres driver. See
	// https://bun.uptrace.dev/postgres/#pgdriver for the DSN format.
	PostgresDSN string `split_words:"true"`

	// SQLitePath is the database file of the sqlite driver.
	SQLitePath string `envconfig:"SQLITE_PATH" default:"tftstats.db"`

	// RedisURL enables the redis driver, the shared response cache and the
	// refresh lock. See https://pkg.go.dev/github.com/redis/go-redis/v9#ParseURL.
	RedisURL string `split_words:"true"`

	// CatalogDir holds units.json, items.json and traits.json. Empty uses ids as names.
	CatalogDir string `split_words:"true"`

	// RefreshInterval is the pause between scheduled refresh runs.
	RefreshInterval time.Duration `split_words:"true" default:"1h"`

	// MatchesPerPartition bounds ingestion per partition and run.
	MatchesPerPartition int `split_words:"true" default:"30"`

	// Upstream rate budget per partition.
	RateShortWindow time.Duration `split_words:"true" default:"1s"`
	RateShortMax    int           `split_words:"true" default:"20"`
	RateLongWindow  time.Duration `split_words:"true" default:"2m"`
	RateLongMax     int           `split_words:"true" default:"100"`

	// APIRate and APIBurst bound requests per client IP on the HTTP API.
	APIRate  float64 `envconfig:"API_RATE" default:"10"`
	APIBurst int     `envconfig:"API_BURST" default:"20"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`

	LogLevel  logging.LogLevel `split_words:"true" default:"info"`
	LogPretty bool             `split_words:"true"`
}

// Parse loads envFile (ignored when missing) and then the environment.
func Parse(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", envFile).Msg("failed to load .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("store driver %q requires TFTSTATS_REDIS_URL", c.StoreDriver)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("store driver %q requires TFTSTATS_POSTGRES_DSN", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (want memory, redis, postgres or sqlite)", c.StoreDriver)
	}
	if !c.LogLevel.Valid() {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.MatchesPerPartition <= 0 {
		return fmt.Errorf("matches per partition must be positive (got %d)", c.MatchesPerPartition)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive (got %s)", c.RefreshInterval)
	}
	return nil
}

// HasAPIKey reports whether an upstream credential is configured.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.RiotAPIKey) != ""
}

// Usage prints the supported variables.
func Usage() error {
	return envconfig.Usage(Prefix, &Config{})
}
