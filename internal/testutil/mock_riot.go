// Package testutil provides testing utilities for the TFT stats service.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRiot is a configurable mock of the Riot API. Hosts are mapped to the
// first path segment, so point endpoint builders at HostFormat().
type MockRiot struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	requestCount      int
	lastRequestHeader http.Header
}

// NewMockRiot starts a mock server.
func NewMockRiot() *MockRiot {
	mock := &MockRiot{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.counts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":{"message":"Data not found","status_code":404}}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockRiot) URL() string {
	return m.server.URL
}

// HostFormat returns a host format whose %s becomes the first path segment.
func (m *MockRiot) HostFormat() string {
	return m.server.URL + "/%s"
}

// Close shuts down the mock server.
func (m *MockRiot) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockRiot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.counts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a path such as "/na1/tft/league/v1/master".
func (m *MockRiot) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockRiot) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON serves v as a 200 response on path.
func (m *MockRiot) SetJSON(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal %s: %v", path, err))
	}
	m.SetResponse(path, NewHealthyResponse(string(body)))
}

// SetLeague serves the master leaderboard for a routing key.
func (m *MockRiot) SetLeague(routing string, lp map[string]int) {
	entries := make([]map[string]any, 0, len(lp))
	for id, points := range lp {
		entries = append(entries, map[string]any{"summonerId": id, "leaguePoints": points})
	}
	m.SetJSON("/"+routing+"/tft/league/v1/master", map[string]any{
		"tier":    "MASTER",
		"entries": entries,
	})
}

// SetSummoner serves the identity of a summoner.
func (m *MockRiot) SetSummoner(routing, summonerID, puuid string) {
	m.SetJSON("/"+routing+"/tft/summoner/v1/summoners/"+summonerID, map[string]any{
		"id":    summonerID,
		"puuid": puuid,
	})
}

// MatchIDsPath returns the match history path for a player.
func MatchIDsPath(continental, puuid string) string {
	return "/" + continental + "/tft/match/v1/matches/by-puuid/" + puuid + "/ids"
}

// MatchPath returns the match detail path.
func MatchPath(continental, matchID string) string {
	return "/" + continental + "/tft/match/v1/matches/" + matchID
}

// SetMatchIDs serves a player's match history.
func (m *MockRiot) SetMatchIDs(continental, puuid string, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	m.SetJSON(MatchIDsPath(continental, puuid), ids)
}

// SetMatch serves a match detail payload.
func (m *MockRiot) SetMatch(continental, matchID string, payload []byte) {
	m.SetResponse(MatchPath(continental, matchID), NewHealthyResponse(string(payload)))
}

// RequestCount returns the number of requests made to the server.
func (m *MockRiot) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestsFor returns the number of requests made to path.
func (m *MockRiot) RequestsFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// RequestsWithPrefix returns the number of requests whose path starts with prefix.
func (m *MockRiot) RequestsWithPrefix(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for p, c := range m.counts {
		if strings.HasPrefix(p, prefix) {
			n += c
		}
	}
	return n
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockRiot) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 response asking to wait retryAfter seconds.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":{"message":"Rate limit exceeded","status_code":429}}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
			"Retry-After":  fmt.Sprintf("%d", retryAfter),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status":{"message":"Internal server error","status_code":500}}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewForbiddenResponse creates a 403 response for a rejected API key.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"status":{"message":"Forbidden","status_code":403}}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}
