package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	tftRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	tftRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tft_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	tftRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// SleepFunc waits for d or until ctx ends, returning ctx's error in the
// latter case. The retry loop only suspends through this function.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; attempt n waits
	// BaseDelay * 2^n.
	BaseDelay time.Duration

	// MaxDelay caps computed and upstream-requested delays. Zero means no cap.
	MaxDelay time.Duration

	// Jitter spreads computed delays by ±Jitter (0.2 = ±20%). Upstream
	// Retry-After values are never jittered.
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    2 * time.Minute,
	}
}

// backoff computes the wait after the zero-based attempt failed.
func (c RetryConfig) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := retryAfter
	if delay <= 0 {
		delay = c.BaseDelay << uint(attempt)
		if c.Jitter > 0 {
			delay = time.Duration(float64(delay) * (1 - c.Jitter + rand.Float64()*2*c.Jitter))
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached. fn receives the zero-based attempt number.
// Only *TransientError results are retried; the delay honors its RetryAfter.
// No wait follows the final attempt.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, sleep SleepFunc, logger zerolog.Logger, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		var transient *TransientError
		if !errors.As(err, &transient) || !shouldRetry(transient.ErrorClass) {
			return err
		}

		if attempt+1 >= cfg.MaxAttempts {
			break
		}

		class := string(transient.ErrorClass)
		delay := cfg.backoff(attempt, transient.RetryAfter)
		tftRetriesTotal.WithLabelValues(class).Inc()
		tftRetryBackoffSeconds.WithLabelValues(class).Observe(delay.Seconds())

		logger.Debug().
			Str("error_class", class).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, delay); err != nil {
			logger.Warn().
				Str("error_class", class).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	class := ErrorClassNetwork
	var transient *TransientError
	if errors.As(lastErr, &transient) {
		class = transient.ErrorClass
	}
	tftRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Returns zero when absent or unparseable.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
