package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
)

type snapshot struct {
	payload []byte
	savedAt time.Time
}

// Memory is a process-local Store for tests and single-process development.
type Memory struct {
	mu       sync.RWMutex
	matches  map[string]CachedMatch
	order    []string
	stats    map[string][]snapshot
	statuses map[string]PartitionStatus
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		matches:  make(map[string]CachedMatch),
		stats:    make(map[string][]snapshot),
		statuses: make(map[string]PartitionStatus),
		now:      time.Now,
	}
}

func statsKey(kind, partition string) string {
	return kind + "|" + partition
}

func (m *Memory) SaveMatch(_ context.Context, matchID, partition string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.matches[matchID]; ok {
		return nil
	}
	m.matches[matchID] = CachedMatch{
		MatchID:   matchID,
		Partition: partition,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: m.now(),
	}
	m.order = append(m.order, matchID)
	return nil
}

func (m *Memory) CachedMatches(_ context.Context, partition string) ([]CachedMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CachedMatch, 0, len(m.order))
	for _, id := range m.order {
		c := m.matches[id]
		if isAll(partition) || strings.EqualFold(c.Partition, partition) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) SaveProcessedStats(_ context.Context, kind, partition string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := statsKey(kind, partition)
	m.stats[k] = append(m.stats[k], snapshot{payload: append([]byte(nil), payload...), savedAt: m.now()})
	return nil
}

func (m *Memory) ProcessedStats(_ context.Context, kind, partition string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.stats[statsKey(kind, partition)]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps[len(snaps)-1].payload, nil
}

func (m *Memory) UpdatePartitionStatus(_ context.Context, partition string, status riot.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.statuses[partition]
	count, lastErr := prev.ErrorCount, prev.LastError
	if status == riot.StatusError {
		count++
		lastErr = errMsg
	}
	m.statuses[partition] = statusFor(partition, status, count, lastErr, m.now())
	return nil
}

func (m *Memory) PartitionStatuses(_ context.Context) ([]PartitionStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PartitionStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Cleanup(_ context.Context, keepFor time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-keepFor)
	kept := m.order[:0]
	for _, id := range m.order {
		if m.matches[id].CreatedAt.Before(cutoff) {
			delete(m.matches, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept

	for k, snaps := range m.stats {
		if len(snaps) > keepSnapshots {
			m.stats[k] = append([]snapshot(nil), snaps[len(snaps)-keepSnapshots:]...)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
