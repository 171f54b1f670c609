package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{name: "client error should not retry", errorClass: ErrorClassClient, expected: false},
		{name: "auth error should not retry", errorClass: ErrorClassAuth, expected: false},
		{name: "server error should retry", errorClass: ErrorClassServer, expected: true},
		{name: "rate limit should retry", errorClass: ErrorClassRateLimit, expected: true},
		{name: "network error should retry", errorClass: ErrorClassNetwork, expected: true},
		{name: "empty error class should not retry", errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusUnauthorized, ErrorClassAuth},
		{http.StatusForbidden, ErrorClassAuth},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusGatewayTimeout, ErrorClassServer},
		{http.StatusServiceUnavailable, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestTransientError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TransientError
		expected string
	}{
		{
			name:     "wrapped network error",
			err:      &TransientError{ErrorClass: ErrorClassNetwork, Err: errors.New("connection refused")},
			expected: "riot network error (status 0): connection refused",
		},
		{
			name:     "status only",
			err:      &TransientError{StatusCode: 503, ErrorClass: ErrorClassServer},
			expected: "riot server error (status 503): Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	wrapped := errors.New("wrapped error")
	err := &TransientError{ErrorClass: ErrorClassNetwork, Err: wrapped}

	if !errors.Is(err, wrapped) {
		t.Error("errors.Is should work with wrapped error")
	}
}

func TestRequestError_UnwrapNil(t *testing.T) {
	err := &RequestError{StatusCode: 404, URL: "https://na1.api.riotgames.com/x"}
	if err.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", err.Unwrap())
	}
	if got, want := err.Error(), "riot request failed (status 404) for https://na1.api.riotgames.com/x"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "api_key", Message: "missing"}
	if got, want := err.Error(), "invalid client config: api_key: missing"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
