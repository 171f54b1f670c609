package cache

import (
	"bytes"
	"net/http"
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	body := []byte(`{"metadata": {}}`)
	tests := []struct {
		name    string
		headers http.Header
		wantTTL time.Duration
	}{
		{
			name: "expires header",
			headers: http.Header{
				"Expires":      []string{time.Now().Add(2 * time.Hour).Format(http.TimeFormat)},
				"Content-Type": []string{"application/json"},
			},
			wantTTL: 2 * time.Hour,
		},
		{
			name:    "fallback ttl",
			headers: http.Header{"Content-Type": []string{"application/json"}},
			wantTTL: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry(body, tt.headers, time.Hour)

			if !bytes.Equal(entry.Data, body) {
				t.Errorf("Data = %s, want %s", entry.Data, body)
			}
			if entry.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %v, want 200", entry.StatusCode)
			}
			if entry.ContentType != "application/json" {
				t.Errorf("ContentType = %q", entry.ContentType)
			}
			if ttl := entry.TTL(); ttl < tt.wantTTL-time.Minute || ttl > tt.wantTTL {
				t.Errorf("TTL = %v, want about %v", ttl, tt.wantTTL)
			}
		})
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		header  string
		wantMin time.Time
		wantMax time.Time
	}{
		{
			name:    "missing uses fallback",
			header:  "",
			wantMin: now.Add(2*time.Hour - time.Second),
			wantMax: now.Add(2*time.Hour + time.Second),
		},
		{
			name:    "invalid uses fallback",
			header:  "not a date",
			wantMin: now.Add(2*time.Hour - time.Second),
			wantMax: now.Add(2*time.Hour + time.Second),
		},
		{
			name:    "past clamps to now",
			header:  now.Add(-time.Hour).UTC().Format(http.TimeFormat),
			wantMin: now.Add(-time.Second),
			wantMax: now.Add(time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Expires", tt.header)
			}
			got := parseExpires(h, 2*time.Hour)
			if got.Before(tt.wantMin) || got.After(tt.wantMax) {
				t.Errorf("parseExpires() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
