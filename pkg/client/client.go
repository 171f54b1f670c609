// Package client provides the Riot API fetcher: authenticated GET requests
// throttled per partition, with per-attempt timeouts, retry with backoff,
// typed error classification and an optional response cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tft-meta-stats/pkg/cache"
	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
)

// Prometheus metrics for upstream requests.
var (
	tftRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_requests_total",
		Help: "Total upstream requests by partition and status",
	}, []string{"partition", "status"})

	tftRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tft_request_duration_seconds",
		Help:    "Upstream request duration in seconds by partition",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"partition"})

	tftErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// CredentialHeader carries the API key on every upstream request.
const CredentialHeader = "X-Riot-Token"

// Limiter admits requests per partition.
type Limiter interface {
	Acquire(ctx context.Context, partition string) error
}

// Config holds the fetcher configuration.
type Config struct {
	// APIKey is the Riot API key (REQUIRED)
	APIKey string

	// UserAgent is sent on every request when set
	UserAgent string

	// Limiter throttles attempts per partition (REQUIRED)
	Limiter Limiter

	// Retry defaults, overridable per call
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration

	// Cache stores responses for immutable resources. Nil disables caching.
	Cache *cache.Manager
	// Cacheable selects which URLs are cached. Nil caches nothing.
	Cacheable func(*url.URL) bool
	// CacheTTL applies when the upstream sends no Expires header.
	CacheTTL time.Duration

	// HTTPClient performs the requests. Nil uses a client without its own
	// timeout, since every attempt carries a context deadline.
	HTTPClient *http.Client

	// Sleep is the backoff primitive. Nil uses ContextSleep.
	Sleep SleepFunc
}

// DefaultConfig returns the default configuration: 3 attempts, 1s base
// delay and a 10s timeout per attempt.
func DefaultConfig(apiKey string, limiter Limiter) Config {
	return Config{
		APIKey:     apiKey,
		UserAgent:  "tft-meta-stats/1.0",
		Limiter:    limiter,
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   2 * time.Minute,
		Timeout:    10 * time.Second,
		CacheTTL:   cache.DefaultTTL,
	}
}

// CallOption overrides retry settings for a single call.
type CallOption func(*callConfig)

type callConfig struct {
	retry   RetryConfig
	timeout time.Duration
}

// WithMaxRetries sets the total number of attempts.
func WithMaxRetries(n int) CallOption {
	return func(c *callConfig) { c.retry.MaxAttempts = n }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// WithBaseDelay sets the backoff base.
func WithBaseDelay(d time.Duration) CallOption {
	return func(c *callConfig) { c.retry.BaseDelay = d }
}

// Fetcher performs upstream GET requests.
type Fetcher struct {
	httpClient *http.Client
	limiter    Limiter
	cache      *cache.Manager
	cacheable  func(*url.URL) bool
	sleep      SleepFunc
	config     Config
	logger     zerolog.Logger
}

// New creates a new fetcher. A missing API key is a *ConfigError.
func New(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Field: "api_key", Message: "RIOT_API_KEY is not set"}
	}
	if cfg.Limiter == nil {
		return nil, &ConfigError{Field: "limiter", Message: "a rate limiter is required"}
	}
	if cfg.MaxRetries < 1 {
		return nil, &ConfigError{Field: "max_retries", Message: fmt.Sprintf("must be >= 1 (got %d)", cfg.MaxRetries)}
	}
	if cfg.Timeout <= 0 {
		return nil, &ConfigError{Field: "timeout", Message: fmt.Sprintf("must be positive (got %s)", cfg.Timeout)}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	cacheable := cfg.Cacheable
	if cacheable == nil {
		cacheable = func(*url.URL) bool { return false }
	}

	return &Fetcher{
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
		cacheable:  cacheable,
		sleep:      sleep,
		config:     cfg,
		logger:     logging.NewLogger("riot-client"),
	}, nil
}

// Get fetches rawURL. found is false when the call produced no data: a
// non-retryable response, exhausted retries or an undecodable body. err is
// only set for an *AuthError, an invalid URL or the caller's context ending.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts ...CallOption) (body []byte, found bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("parse url: %w", err)
	}

	call := callConfig{
		retry: RetryConfig{
			MaxAttempts: f.config.MaxRetries,
			BaseDelay:   f.config.BaseDelay,
			MaxDelay:    f.config.MaxDelay,
		},
		timeout: f.config.Timeout,
	}
	for _, opt := range opts {
		opt(&call)
	}

	partition := PartitionFromURL(u)
	logger := f.logger.With().Str("partition", partition).Str("url", u.Path).Logger()

	useCache := f.cache != nil && f.cacheable(u)
	var cacheKey cache.CacheKey
	if useCache {
		cacheKey = cache.KeyFromURL(u)
		entry, cerr := f.cache.Get(ctx, cacheKey)
		if cerr == nil {
			logger.Debug().Msg("Serving cached response")
			return entry.Data, true, nil
		}
		if !errors.Is(cerr, cache.ErrCacheMiss) {
			logger.Warn().Err(cerr).Msg("Cache get error")
		}
	}

	var resp *response
	err = retryWithBackoff(ctx, call.retry, f.sleep, logger, func(attempt int) error {
		r, aerr := f.attempt(ctx, u, partition, call.timeout, attempt)
		if aerr != nil {
			return aerr
		}
		resp = r
		return nil
	})

	if err != nil {
		var authErr *AuthError
		var reqErr *RequestError
		switch {
		case errors.As(err, &authErr):
			logger.Error().Int("status", authErr.StatusCode).Msg("API key rejected")
			return nil, false, authErr
		case errors.As(err, &reqErr):
			logger.Warn().Err(reqErr).Msg("Request failed, returning no data")
			return nil, false, nil
		case errors.Is(err, ErrRetryExhausted):
			logger.Warn().Err(err).Msg("Max retries exceeded, returning no data")
			return nil, false, nil
		default:
			// Caller's context ended
			return nil, false, err
		}
	}

	if useCache {
		entry := cache.NewEntry(resp.body, resp.header, f.config.CacheTTL)
		if cerr := f.cache.Set(ctx, cacheKey, entry); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to cache response")
		}
	}

	return resp.body, true, nil
}

// GetJSON fetches rawURL and decodes the body into out. found is false when
// Get produced no data or the body could not be decoded.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any, opts ...CallOption) (bool, error) {
	body, found, err := f.Get(ctx, rawURL, opts...)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		f.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to decode response")
		return false, nil
	}
	return true, nil
}

type response struct {
	body   []byte
	header http.Header
}

// attempt performs one throttled, time-bounded request and classifies the
// outcome.
func (f *Fetcher) attempt(ctx context.Context, u *url.URL, partition string, timeout time.Duration, attempt int) (*response, error) {
	if err := f.limiter.Acquire(ctx, partition); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(CredentialHeader, f.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	tftRequestDuration.WithLabelValues(partition).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tftErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		tftRequestsTotal.WithLabelValues(partition, "network_error").Inc()
		f.logger.Warn().
			Err(err).
			Str("partition", partition).
			Str("url", u.Path).
			Int("attempt", attempt+1).
			Msg("Request failed")
		return nil, &TransientError{ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	tftRequestsTotal.WithLabelValues(partition, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			tftErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, &TransientError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Err: err}
		}
		return &response{body: body, header: resp.Header}, nil
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	class := classifyStatus(resp.StatusCode)
	tftErrorsTotal.WithLabelValues(string(class)).Inc()

	f.logger.Warn().
		Str("partition", partition).
		Str("url", u.Path).
		Int("status", resp.StatusCode).
		Str("error_class", string(class)).
		Int("attempt", attempt+1).
		Msg("Upstream request error")

	switch class {
	case ErrorClassAuth:
		return nil, &AuthError{StatusCode: resp.StatusCode, URL: u.String()}
	case ErrorClassRateLimit:
		return nil, &TransientError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			RetryAfter: parseRetryAfter(resp.Header, time.Now()),
		}
	case ErrorClassServer:
		return nil, &TransientError{StatusCode: resp.StatusCode, ErrorClass: class}
	default:
		return nil, &RequestError{StatusCode: resp.StatusCode, URL: u.String()}
	}
}

// PartitionFromURL returns the first label of the URL's host, which is the
// routing or continental key for Riot hosts.
func PartitionFromURL(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}
