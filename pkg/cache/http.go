package cache

import (
	"net/http"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when no expires header is present.
	// Finished matches are immutable, so a day is safe.
	DefaultTTL = 24 * time.Hour
)

// NewEntry builds an entry for a body that has already been read.
func NewEntry(body []byte, headers http.Header, fallbackTTL time.Duration) *CacheEntry {
	return &CacheEntry{
		Data:        body,
		StatusCode:  http.StatusOK,
		ContentType: headers.Get("Content-Type"),
		Expires:     parseExpires(headers, fallbackTTL),
		CachedAt:    time.Now(),
	}
}

// parseExpires parses the Expires header from HTTP headers.
// Returns the parsed expiration time, or now + fallback if the header is
// missing or unparseable.
func parseExpires(headers http.Header, fallback time.Duration) time.Time {
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(fallback)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(fallback)
	}

	if expires.Before(time.Now()) {
		// Already expired
		return time.Now()
	}

	return expires
}
