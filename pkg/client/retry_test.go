package client

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// recordSleep returns a SleepFunc that records delays without waiting.
func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.BaseDelay != 1*time.Second {
		t.Errorf("BaseDelay = %v, want 1s", config.BaseDelay)
	}
	if config.Jitter != 0 {
		t.Errorf("Jitter = %v, want 0", config.Jitter)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		name       string
		attempt    int
		retryAfter time.Duration
		want       time.Duration
	}{
		{name: "first retry", attempt: 0, want: 1 * time.Second},
		{name: "second retry", attempt: 1, want: 2 * time.Second},
		{name: "third retry", attempt: 2, want: 4 * time.Second},
		{name: "capped", attempt: 5, want: 10 * time.Second},
		{name: "retry-after wins", attempt: 2, retryAfter: 3 * time.Second, want: 3 * time.Second},
		{name: "retry-after capped", attempt: 0, retryAfter: time.Minute, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.backoff(tt.attempt, tt.retryAfter); got != tt.want {
				t.Errorf("backoff(%d, %v) = %v, want %v", tt.attempt, tt.retryAfter, got, tt.want)
			}
		})
	}
}

func TestRetryConfig_BackoffJitter(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, Jitter: 0.2}
	for i := 0; i < 50; i++ {
		got := cfg.backoff(0, 0)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("jittered backoff %v outside ±20%%", got)
		}
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := retryWithBackoff(context.Background(), DefaultRetryConfig(), recordSleep(&delays), testLogger(), func(int) error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if len(delays) != 0 {
		t.Errorf("Expected no sleeps, got %v", delays)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := retryWithBackoff(context.Background(), DefaultRetryConfig(), recordSleep(&delays), testLogger(), func(attempt int) error {
		calls++
		if attempt < 2 {
			return &TransientError{StatusCode: 500, ErrorClass: ErrorClassServer}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := retryWithBackoff(context.Background(), DefaultRetryConfig(), recordSleep(&delays), testLogger(), func(int) error {
		calls++
		return &TransientError{ErrorClass: ErrorClassNetwork, Err: context.DeadlineExceeded}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	// No sleep after the final attempt
	if len(delays) != 2 {
		t.Errorf("Expected 2 sleeps, got %d", len(delays))
	}
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	var delays []time.Duration
	calls := 0
	authErr := &AuthError{StatusCode: 403}

	err := retryWithBackoff(context.Background(), DefaultRetryConfig(), recordSleep(&delays), testLogger(), func(int) error {
		calls++
		return authErr
	})

	if !errors.Is(err, authErr) {
		t.Errorf("Expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, DefaultRetryConfig(), ContextSleep, testLogger(), func(int) error {
		return &TransientError{StatusCode: 500, ErrorClass: ErrorClassServer}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "absent", header: "", want: 0},
		{name: "seconds", header: "7", want: 7 * time.Second},
		{name: "negative", header: "-3", want: 0},
		{name: "http date", header: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "past date", header: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", header: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(h, now); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}
