// Package combo proposes item trios from aggregation output: for a main
// item, the pairs of other items most often built alongside it on the same
// unit.
package combo

import (
	"sort"

	"github.com/samber/lo"

	"github.com/Sternrassler/tft-meta-stats/pkg/aggregate"
)

// candidateLimit is how many pairing items are combined into trios.
const candidateLimit = 5

// Combo is a main item plus two complementary items.
type Combo struct {
	MainItem  string   `json:"mainItem"`
	Items     []string `json:"items"`
	WinRate   float64  `json:"winRate"`
	Frequency int      `json:"frequency"`
}

type pairing struct {
	id         string
	count      int
	winRateSum float64
}

func (p pairing) avgWinRate() float64 {
	if p.count == 0 {
		return 0
	}
	return p.winRateSum / float64(p.count)
}

// Discover returns the trios for mainItemID, best win rate first. usages are
// the units recorded carrying the main item; comps resolves their related
// compositions. Empty inputs yield an empty list.
func Discover(mainItemID string, comps []aggregate.Composition, usages []aggregate.UnitWithItem) []Combo {
	out := []Combo{}
	if len(usages) == 0 {
		return out
	}

	byID := lo.KeyBy(comps, func(c aggregate.Composition) string { return c.ID })
	tallies := make(map[string]*pairing)

	for _, usage := range usages {
		for _, compID := range usage.RelatedComps {
			comp, ok := byID[compID]
			if !ok {
				continue
			}
			u, ok := lo.Find(comp.Units, func(u aggregate.CompUnit) bool { return u.ID == usage.ID })
			if !ok {
				continue
			}
			if !lo.ContainsBy(u.Items, func(it aggregate.CompItem) bool { return it.ID == mainItemID }) {
				continue
			}
			for _, it := range u.Items {
				if it.ID == mainItemID {
					continue
				}
				p, ok := tallies[it.ID]
				if !ok {
					p = &pairing{id: it.ID}
					tallies[it.ID] = p
				}
				p.count++
				p.winRateSum += comp.WinRate
			}
		}
	}

	cands := lo.Map(lo.Values(tallies), func(p *pairing, _ int) pairing { return *p })
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > candidateLimit {
		cands = cands[:candidateLimit]
	}

	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			a, b := cands[i], cands[j]
			avg := (a.avgWinRate() + b.avgWinRate()) / 2
			if avg <= 0 {
				continue
			}
			out = append(out, Combo{
				MainItem:  mainItemID,
				Items:     []string{mainItemID, a.id, b.id},
				WinRate:   avg,
				Frequency: a.count + b.count,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		return out[i].Frequency > out[j].Frequency
	})
	return out
}

// DiscoverAll runs Discover for every item with recorded usages.
func DiscoverAll(res *aggregate.Result) map[string][]Combo {
	out := make(map[string][]Combo, len(res.UnitsByItem))
	for _, item := range lo.Keys(res.UnitsByItem) {
		out[item] = Discover(item, res.Compositions, res.UnitsByItem[item])
	}
	return out
}

// Usages returns the recorded units carrying itemID. Results read back from
// storage carry them on the composition items instead of UnitsByItem.
func Usages(res *aggregate.Result, itemID string) []aggregate.UnitWithItem {
	if u, ok := res.UnitsByItem[itemID]; ok {
		return u
	}
	for _, comp := range res.Compositions {
		for _, u := range comp.Units {
			for _, it := range u.Items {
				if it.ID == itemID && len(it.UnitsWithItem) > 0 {
					return it.UnitsWithItem
				}
			}
		}
	}
	return nil
}

// ForItem discovers the trios for one item of res.
func ForItem(res *aggregate.Result, itemID string) []Combo {
	return Discover(itemID, res.Compositions, Usages(res, itemID))
}
