// Package store persists raw matches, processed statistics and partition
// health. Implementations exist for process memory, Redis, PostgreSQL and
// SQLite; all of them satisfy Store with identical semantics.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/tft-meta-stats/pkg/match"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
)

// ErrNotFound is returned when no processed stats exist for a kind and partition.
var ErrNotFound = errors.New("store: not found")

// AllPartitions is the partition key for statistics computed over every partition.
const AllPartitions = "all"

// Kinds of processed statistics.
const (
	KindCompositions = "compositions"
	KindUnits        = "units"
	KindItems        = "items"
	KindTraits       = "traits"
	KindComps        = "comps"
)

// EntityKinds are the kinds served by the entity stats endpoint.
var EntityKinds = []string{KindUnits, KindItems, KindTraits, KindComps}

// ValidEntityKind reports whether kind is one of EntityKinds.
func ValidEntityKind(kind string) bool {
	for _, k := range EntityKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CachedMatch is a persisted match payload.
type CachedMatch struct {
	MatchID   string    `json:"matchId"`
	Partition string    `json:"region"`
	Payload   []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// PartitionStatus is the persisted health of a partition.
type PartitionStatus = riot.PartitionState

// Store is the persistence boundary used by ingestion, the refresh job and
// the HTTP API.
type Store interface {
	// SaveMatch stores a match payload. Saving an id that already exists is a no-op.
	SaveMatch(ctx context.Context, matchID, partition string, payload []byte) error
	// CachedMatches lists stored matches. "" or "all" returns every partition.
	CachedMatches(ctx context.Context, partition string) ([]CachedMatch, error)
	// SaveProcessedStats appends a stats snapshot; reads return the latest one.
	SaveProcessedStats(ctx context.Context, kind, partition string, payload []byte) error
	// ProcessedStats returns the latest snapshot or ErrNotFound.
	ProcessedStats(ctx context.Context, kind, partition string) ([]byte, error)
	// UpdatePartitionStatus records a partition's health. StatusError
	// increments the error counter and records errMsg.
	UpdatePartitionStatus(ctx context.Context, partition string, status riot.Status, errMsg string) error
	// PartitionStatuses lists every partition with a recorded status.
	PartitionStatuses(ctx context.Context) ([]PartitionStatus, error)
	// Cleanup removes matches older than keepFor and all but the two most
	// recent snapshots per kind and partition.
	Cleanup(ctx context.Context, keepFor time.Duration) error
	// Close releases the underlying connection.
	Close() error
}

// keepSnapshots is how many stats snapshots per kind and partition survive Cleanup.
const keepSnapshots = 2

// isAll reports whether partition selects every partition.
func isAll(partition string) bool {
	return partition == "" || strings.EqualFold(partition, AllPartitions)
}

// CanonicalPartition maps user input to the partition label stats are
// stored under: "all" for every partition, otherwise the upper-case key.
func CanonicalPartition(partition string) string {
	if isAll(partition) {
		return AllPartitions
	}
	return strings.ToUpper(partition)
}

// MarshalMatch encodes a match for SaveMatch.
func MarshalMatch(m match.Match) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMatches decodes cached payloads, skipping any that fail to decode.
// The number skipped is returned alongside the matches.
func DecodeMatches(cached []CachedMatch) ([]match.Match, int) {
	out := make([]match.Match, 0, len(cached))
	skipped := 0
	for _, c := range cached {
		var m match.Match
		if err := json.Unmarshal(c.Payload, &m); err != nil || m.ID == "" {
			skipped++
			continue
		}
		if m.Partition == "" {
			m.Partition = c.Partition
		}
		out = append(out, m)
	}
	return out, skipped
}

// statusFor builds a PartitionStatus, filling host prefixes from the partition table.
func statusFor(key string, status riot.Status, errorCount int, lastError string, updated time.Time) PartitionStatus {
	p, ok := riot.Lookup(key)
	if !ok {
		p = riot.Partition{Key: key}
	}
	return PartitionStatus{
		Partition:  p,
		Status:     status,
		ErrorCount: errorCount,
		LastError:  lastError,
		UpdatedAt:  updated,
	}
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)
