// Package riot describes the upstream TFT API surface: the fixed partition
// table, endpoint builders, the response shapes the ingestion path reads, and
// normalization of match payloads into match.Match values.
package riot

import (
	"sort"
	"strings"
	"time"
)

// Status is the health of a partition after its last ingestion run.
type Status string

// Partition health states.
const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusDegraded   Status = "degraded"
	StatusError      Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusProcessing, StatusDegraded, StatusError:
		return true
	}
	return false
}

// Partition is an independently throttled upstream shard.
type Partition struct {
	// Key is the short partition name used in storage and the HTTP API (NA, EUW, ...).
	Key string `json:"key"`
	// Routing is the platform host prefix serving league and summoner data.
	Routing string `json:"routing"`
	// Continental is the regional host prefix serving match data.
	Continental string `json:"continental"`
}

// PartitionState is a partition with its persisted health.
type PartitionState struct {
	Partition
	Status     Status    `json:"status"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
	UpdatedAt  time.Time `json:"lastUpdated"`
}

var partitions = map[string]Partition{
	"NA":  {Key: "NA", Routing: "na1", Continental: "americas"},
	"EUW": {Key: "EUW", Routing: "euw1", Continental: "europe"},
	"KR":  {Key: "KR", Routing: "kr", Continental: "asia"},
	"BR":  {Key: "BR", Routing: "br1", Continental: "americas"},
	"JP":  {Key: "JP", Routing: "jp1", Continental: "asia"},
}

// partitionOrder is the order partitions are processed in a refresh run.
var partitionOrder = []string{"NA", "EUW", "KR", "BR", "JP"}

// Lookup returns the partition for a key. Keys are case-insensitive.
func Lookup(key string) (Partition, bool) {
	p, ok := partitions[strings.ToUpper(key)]
	return p, ok
}

// Partitions returns the fixed partition set in processing order.
func Partitions() []Partition {
	out := make([]Partition, 0, len(partitionOrder))
	for _, k := range partitionOrder {
		out = append(out, partitions[k])
	}
	return out
}

// PartitionKeys returns the partition keys in processing order.
func PartitionKeys() []string {
	return append([]string(nil), partitionOrder...)
}

// LimiterKeys returns every host prefix that is throttled independently,
// routing keys first.
func LimiterKeys() []string {
	seen := make(map[string]bool)
	var routing, continental []string
	for _, p := range Partitions() {
		if !seen[p.Routing] {
			seen[p.Routing] = true
			routing = append(routing, p.Routing)
		}
		if !seen[p.Continental] {
			seen[p.Continental] = true
			continental = append(continental, p.Continental)
		}
	}
	sort.Strings(continental)
	return append(routing, continental...)
}
