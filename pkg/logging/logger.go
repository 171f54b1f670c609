// Package logging configures zerolog for every tft-meta-stats component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// ServiceName is attached to every log line.
const ServiceName = "tftstats"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
		cfg.Output = output
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp and service name
	logger := zerolog.New(output).With().Timestamp().Str("service", ServiceName).Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// Valid reports whether l names a supported level.
func (l LogLevel) Valid() bool {
	switch LogLevel(strings.ToLower(string(l))) {
	case LevelDebug, LevelInfo, LevelWarn, "warning", LevelError:
		return true
	}
	return false
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Limiter admission and queueing
//   - Individual match detail fetches
//
// Info: Normal operation events
//   - Partition runs completed
//   - Stats snapshots saved
//   - Refresh runs started and finished
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and 429 responses
//   - Degraded partitions
//   - Undecodable match payloads (skipped)
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Partition runs ending in error
//   - Authentication failures
//   - Store failures
//   - Configuration errors
//
// Context Fields:
//   - partition: partition key (NA, EUW, ...)
//   - url: upstream URL
//   - status: HTTP status code or partition status
//   - attempt: retry attempt number
//   - error_class: error classification (client, auth, server, rate_limit, network)
//   - match_id: upstream match id
//   - run_id: refresh run id
//   - kind: stats kind (compositions, units, items, traits, comps)
