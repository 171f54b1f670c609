package aggregate

import (
	"sort"

	"github.com/samber/lo"

	"github.com/Sternrassler/tft-meta-stats/pkg/catalog"
)

// tally accumulates placements for one pairing.
type tally struct {
	count        int
	wins         int
	top4         int
	placementSum int
}

func (t *tally) add(c candidate) {
	t.count++
	t.placementSum += c.placement
	if c.won() {
		t.wins++
	}
	if c.topFour() {
		t.top4++
	}
}

func (t tally) avgPlacement() float64 {
	return clampPlacement(float64(t.placementSum) / float64(t.count))
}

func (t tally) winRate() float64 {
	return clampRate(float64(t.wins) / float64(t.count) * 100)
}

func (t tally) top4Rate() float64 {
	return clampRate(float64(t.top4) / float64(t.count) * 100)
}

// pairTallies counts every (unit, item) pairing over all candidates, keyed
// outer by the first id returned from key.
func pairTallies(cands []candidate, key func(unitID, itemID string) (string, string)) map[string]map[string]*tally {
	out := make(map[string]map[string]*tally)
	for _, c := range cands {
		for _, u := range c.units {
			for _, it := range u.Items {
				outer, inner := key(u.ID, it.ID)
				m, ok := out[outer]
				if !ok {
					m = make(map[string]*tally)
					out[outer] = m
				}
				t, ok := m[inner]
				if !ok {
					t = &tally{}
					m[inner] = t
				}
				t.add(c)
			}
		}
	}
	return out
}

// bestItemsByUnit ranks the items seen on each unit by win rate, then count.
func (e *Engine) bestItemsByUnit(cands []candidate) map[string][]ItemStat {
	tallies := pairTallies(cands, func(unitID, itemID string) (string, string) {
		return unitID, itemID
	})

	out := make(map[string][]ItemStat, len(tallies))
	for unitID, items := range tallies {
		stats := make([]ItemStat, 0, len(items))
		for itemID, t := range items {
			ref, _ := e.catalog.Item(itemID)
			stats = append(stats, ItemStat{
				ID:           itemID,
				Name:         ref.Name,
				Icon:         catalog.IconPath(catalog.KindItem, ref.Icon),
				Category:     ref.Category,
				Count:        t.count,
				AvgPlacement: t.avgPlacement(),
				WinRate:      t.winRate(),
				Top4Rate:     t.top4Rate(),
			})
		}
		sort.Slice(stats, func(i, j int) bool {
			return rankBefore(stats[i].WinRate, stats[j].WinRate, stats[i].Count, stats[j].Count, stats[i].ID, stats[j].ID)
		})
		if len(stats) > bestItemsLimit {
			stats = stats[:bestItemsLimit]
		}
		out[unitID] = stats
	}
	return out
}

// unitsByItem ranks the units that carried each item and lists the
// compositions whose loadout pairs them.
func (e *Engine) unitsByItem(cands []candidate, comps []Composition) map[string][]UnitWithItem {
	tallies := pairTallies(cands, func(unitID, itemID string) (string, string) {
		return itemID, unitID
	})

	out := make(map[string][]UnitWithItem, len(tallies))
	for itemID, units := range tallies {
		stats := make([]UnitWithItem, 0, len(units))
		for unitID, t := range units {
			ref, _ := e.catalog.Unit(unitID)
			stats = append(stats, UnitWithItem{
				ID:           unitID,
				Name:         ref.Name,
				Icon:         catalog.IconPath(catalog.KindUnit, ref.Icon),
				Cost:         ref.Cost,
				Count:        t.count,
				AvgPlacement: t.avgPlacement(),
				WinRate:      t.winRate(),
				Top4Rate:     t.top4Rate(),
				RelatedComps: relatedComps(comps, unitID, itemID),
			})
		}
		sort.Slice(stats, func(i, j int) bool {
			return rankBefore(stats[i].WinRate, stats[j].WinRate, stats[i].Count, stats[j].Count, stats[i].ID, stats[j].ID)
		})
		out[itemID] = stats
	}
	return out
}

// relatedComps returns, in composition order, the ids of compositions whose
// unitID carries itemID.
func relatedComps(comps []Composition, unitID, itemID string) []string {
	out := []string{}
	for _, comp := range comps {
		for _, u := range comp.Units {
			if u.ID != unitID {
				continue
			}
			if lo.ContainsBy(u.Items, func(it CompItem) bool { return it.ID == itemID }) {
				out = append(out, comp.ID)
			}
			break
		}
	}
	return out
}

// rankBefore orders by win rate descending, count descending, then id.
func rankBefore(wi, wj float64, ci, cj int, idi, idj string) bool {
	if wi != wj {
		return wi > wj
	}
	if ci != cj {
		return ci > cj
	}
	return idi < idj
}

// weighted accumulates composition-weighted stats for one entity.
type weighted struct {
	games        int
	placementSum float64
	winSum       float64
	top4Sum      float64
}

func unitIDs(c Composition) []string {
	return lo.Uniq(lo.Map(c.Units, func(u CompUnit, _ int) string { return u.ID }))
}

func itemIDs(c Composition) []string {
	return lo.Uniq(lo.FlatMap(c.Units, func(u CompUnit, _ int) []string {
		return lo.Map(u.Items, func(it CompItem, _ int) string { return it.ID })
	}))
}

func traitIDs(c Composition) []string {
	return lo.Uniq(lo.Map(c.Traits, func(t CompTrait, _ int) string { return t.ID }))
}

// entityStats rolls composition stats up to the entities each composition
// contains, weighting every composition by its count.
func (e *Engine) entityStats(comps []Composition, total int, ids func(Composition) []string, kind catalog.Kind) []EntityStat {
	acc := make(map[string]*weighted)
	for _, comp := range comps {
		n := float64(comp.Count)
		for _, id := range ids(comp) {
			w, ok := acc[id]
			if !ok {
				w = &weighted{}
				acc[id] = w
			}
			w.games += comp.Count
			w.placementSum += comp.AvgPlacement * n
			w.winSum += comp.WinRate / 100 * n
			w.top4Sum += comp.Top4Rate / 100 * n
		}
	}

	out := make([]EntityStat, 0, len(acc))
	for id, w := range acc {
		games := float64(w.games)
		out = append(out, EntityStat{
			ID:           id,
			Name:         e.catalog.DisplayName(kind, id),
			Icon:         e.catalog.Icon(kind, id),
			Count:        w.games,
			AvgPlacement: clampPlacement(w.placementSum / games),
			WinRate:      clampRate(w.winSum / games * 100),
			Top4Rate:     clampRate(w.top4Sum / games * 100),
			PlayRate:     clampRate(games / float64(total) * 100),
		})
	}
	sortEntities(out)
	return out
}

// compStats reports every composition as an entity.
func compStats(comps []Composition, total int) []EntityStat {
	out := lo.Map(comps, func(c Composition, _ int) EntityStat {
		return EntityStat{
			ID:           c.ID,
			Name:         c.Name,
			Icon:         c.Icon,
			Count:        c.Count,
			AvgPlacement: c.AvgPlacement,
			WinRate:      c.WinRate,
			Top4Rate:     c.Top4Rate,
			PlayRate:     clampRate(float64(c.Count) / float64(total) * 100),
		}
	})
	sortEntities(out)
	return out
}

func sortEntities(es []EntityStat) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Count != es[j].Count {
			return es[i].Count > es[j].Count
		}
		return es[i].ID < es[j].ID
	})
}
