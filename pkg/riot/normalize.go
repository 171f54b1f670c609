package riot

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Sternrassler/tft-meta-stats/pkg/match"
)

// ErrInvalidMatch is returned when a payload is not a usable match detail.
var ErrInvalidMatch = errors.New("invalid match payload")

// MatchID extracts metadata.match_id from a match detail payload.
func MatchID(payload []byte) string {
	return gjson.GetBytes(payload, "metadata.match_id").String()
}

// Normalize reduces a match detail payload to placement, units with items and
// traits with a positive activation style. Missing optional fields default to
// empty values.
func Normalize(payload []byte, partition string) (match.Match, error) {
	if !gjson.ValidBytes(payload) {
		return match.Match{}, fmt.Errorf("%w: malformed json", ErrInvalidMatch)
	}

	doc := gjson.ParseBytes(payload)
	id := doc.Get("metadata.match_id").String()
	if id == "" {
		return match.Match{}, fmt.Errorf("%w: missing metadata.match_id", ErrInvalidMatch)
	}

	m := match.Match{ID: id, Partition: partition}
	doc.Get("info.participants").ForEach(func(_, p gjson.Result) bool {
		m.Participants = append(m.Participants, normalizeParticipant(p))
		return true
	})

	return m, nil
}

func normalizeParticipant(p gjson.Result) match.Participant {
	out := match.Participant{
		Placement: int(p.Get("placement").Int()),
		Units:     []match.Unit{},
		Traits:    []match.Trait{},
	}

	p.Get("units").ForEach(func(_, u gjson.Result) bool {
		unit := match.Unit{
			CharacterID: u.Get("character_id").String(),
			Items:       []string{},
		}
		u.Get("itemNames").ForEach(func(_, item gjson.Result) bool {
			unit.Items = append(unit.Items, item.String())
			return true
		})
		out.Units = append(out.Units, unit)
		return true
	})

	p.Get("traits").ForEach(func(_, t gjson.Result) bool {
		style := int(t.Get("style").Int())
		if style <= 0 {
			return true
		}
		out.Traits = append(out.Traits, match.Trait{
			Name:     t.Get("name").String(),
			Tier:     style,
			NumUnits: int(t.Get("num_units").Int()),
		})
		return true
	})

	return out
}
