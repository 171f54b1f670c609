// Package match defines the normalized match record produced by ingestion and
// consumed by aggregation. Values are treated as immutable once built.
package match

import (
	"strings"

	"github.com/samber/lo"
)

// Match is one finished game reduced to what aggregation needs.
type Match struct {
	ID           string        `json:"id"`
	Partition    string        `json:"region"`
	Participants []Participant `json:"participants"`
}

// Participant is one player's final board.
type Participant struct {
	Placement int     `json:"placement"`
	Units     []Unit  `json:"units"`
	Traits    []Trait `json:"traits"`
}

// Unit is a champion on the board with its equipped items.
type Unit struct {
	CharacterID string   `json:"name"`
	Items       []string `json:"itemNames"`
}

// Trait is an activated synergy.
type Trait struct {
	Name     string `json:"name"`
	Tier     int    `json:"tier_current"`
	NumUnits int    `json:"num_units"`
}

// MinPlacement and MaxPlacement bound a lobby placement.
const (
	MinPlacement = 1
	MaxPlacement = 8
)

// ValidPlacement reports whether p is a possible lobby placement.
func ValidPlacement(p int) bool {
	return p >= MinPlacement && p <= MaxPlacement
}

// Filter returns the matches belonging to partition. An empty partition or
// "all" keeps every match.
func Filter(matches []Match, partition string) []Match {
	if partition == "" || strings.EqualFold(partition, "all") {
		return matches
	}
	return lo.Filter(matches, func(m Match, _ int) bool {
		return strings.EqualFold(m.Partition, partition)
	})
}
