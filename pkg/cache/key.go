package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Partition is the upstream host prefix (e.g., "americas")
	Partition string

	// Endpoint is the request path (e.g., "/tft/match/v1/matches/NA1_1")
	Endpoint string

	// QueryParams are the query parameters
	QueryParams url.Values
}

// KeyFromURL builds the key for an upstream URL. The partition is the first
// label of the host.
func KeyFromURL(u *url.URL) CacheKey {
	host := u.Hostname()
	partition := host
	if i := strings.IndexByte(host, '.'); i > 0 {
		partition = host[:i]
	}
	return CacheKey{
		Partition:   strings.ToLower(partition),
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: tft:partition:endpoint:query1=val1
//
// Example:
//
//	tft:americas:tft/match/v1/matches/NA1_1
func (k CacheKey) String() string {
	parts := []string{"tft"}

	if k.Partition != "" {
		parts = append(parts, k.Partition)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
