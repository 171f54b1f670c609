package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth failures.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network errors and attempt timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// ConfigError reports an unusable fetcher configuration. It is returned
// before any network call is made.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid client config: %s: %s", e.Field, e.Message)
}

// AuthError is a terminal 401/403 response. The credential is missing,
// expired or lacks access, so no retry can succeed.
type AuthError struct {
	StatusCode int
	URL        string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("riot api key rejected (status %d) for %s", e.StatusCode, e.URL)
}

// RequestError is a non-retryable response other than an auth failure.
// Callers receive "no data" instead of this error; it is surfaced in logs.
type RequestError struct {
	StatusCode int
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("riot request failed (status %d) for %s: %v", e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("riot request failed (status %d) for %s", e.StatusCode, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// TransientError is a retryable failure: a timeout, a network error, a 5xx
// or a 429.
type TransientError struct {
	StatusCode int
	ErrorClass ErrorClass
	// RetryAfter is the delay requested by the upstream, zero when absent.
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("riot %s error (status %d): %v", e.ErrorClass, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("riot %s error (status %d): %s", e.ErrorClass, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status code to its error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// Client and auth errors fail the same way on every attempt
		return false
	}
}
