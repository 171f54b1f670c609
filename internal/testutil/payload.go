package testutil

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Board describes one participant of a generated match payload.
type Board struct {
	Placement int
	Units     []BoardUnit
	Traits    []BoardTrait
}

// BoardUnit is a unit with its items.
type BoardUnit struct {
	ID    string
	Items []string
}

// BoardTrait is a trait with its activation style.
type BoardTrait struct {
	Name     string
	Style    int
	NumUnits int
}

// MatchPayload renders a match detail payload in the upstream shape.
func MatchPayload(matchID string, boards ...Board) []byte {
	participants := make([]map[string]any, 0, len(boards))
	for i, b := range boards {
		units := make([]map[string]any, 0, len(b.Units))
		for _, u := range b.Units {
			items := u.Items
			if items == nil {
				items = []string{}
			}
			units = append(units, map[string]any{
				"character_id": u.ID,
				"itemNames":    items,
				"tier":         1,
			})
		}
		traits := make([]map[string]any, 0, len(b.Traits))
		for _, t := range b.Traits {
			traits = append(traits, map[string]any{
				"name":         t.Name,
				"num_units":    t.NumUnits,
				"style":        t.Style,
				"tier_current": t.Style,
			})
		}
		participants = append(participants, map[string]any{
			"puuid":     fmt.Sprintf("player-%d", i),
			"placement": b.Placement,
			"units":     units,
			"traits":    traits,
		})
	}

	body, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"match_id": matchID},
		"info":     map[string]any{"participants": participants},
	})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal match %s: %v", matchID, err))
	}
	return body
}
