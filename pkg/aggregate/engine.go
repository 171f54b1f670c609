// Package aggregate turns a corpus of normalized matches into ranked
// composition, unit, item and trait statistics. Process is a pure function
// of its input: the same matches always produce the same output.
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/Sternrassler/tft-meta-stats/pkg/catalog"
	"github.com/Sternrassler/tft-meta-stats/pkg/match"
)

const (
	// otherKey groups boards without a qualifying trait. It is never reported.
	otherKey = "Other"
	// minGroupSize is the noise floor for compositions.
	minGroupSize = 2
	// bestItemsLimit caps the best items listed per unit.
	bestItemsLimit = 3
	// topCompsLimit caps Summary.TopComps.
	topCompsLimit = 5
	// AllPartitions labels a result computed over every partition.
	AllPartitions = "all"
)

// Engine aggregates matches using a reference catalog for display data.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine creates an engine. A nil catalog behaves like catalog.Empty.
func NewEngine(c *catalog.Catalog) *Engine {
	if c == nil {
		c = catalog.Empty()
	}
	return &Engine{catalog: c}
}

// candidate is one participant's board.
type candidate struct {
	key       string
	placement int
	partition string
	traits    []CompTrait
	units     []CompUnit
}

func (c candidate) won() bool     { return c.placement == 1 }
func (c candidate) topFour() bool { return c.placement >= 1 && c.placement <= 4 }

// Process aggregates the matches belonging to partition ("" or "all" for
// every partition). It never fails: missing fields default to zero values and
// an empty corpus yields an empty result.
func (e *Engine) Process(matches []match.Match, partition string) *Result {
	label := partition
	if label == "" {
		label = AllPartitions
	}
	res := &Result{
		Compositions: []Composition{},
		Summary:      Summary{TopComps: []string{}},
		Partition:    label,
		Units:        []EntityStat{},
		Items:        []EntityStat{},
		Traits:       []EntityStat{},
		Comps:        []EntityStat{},
		UnitsByItem:  map[string][]UnitWithItem{},
	}

	filtered := match.Filter(matches, partition)
	if len(filtered) == 0 {
		return res
	}
	res.Summary.TotalGames = len(filtered)

	cands := e.flatten(filtered)
	if len(cands) == 0 {
		return res
	}
	res.Summary.AvgPlacement = clampPlacement(lo.SumBy(cands, func(c candidate) float64 {
		return float64(c.placement)
	}) / float64(len(cands)))

	comps := e.group(cands)
	best := e.bestItemsByUnit(cands)
	usage := e.unitsByItem(cands, comps)

	for ci := range comps {
		for ui := range comps[ci].Units {
			u := &comps[ci].Units[ui]
			u.BestItems = best[u.ID]
			for ii := range u.Items {
				u.Items[ii].UnitsWithItem = usage[u.Items[ii].ID]
			}
		}
	}

	res.Compositions = comps
	res.UnitsByItem = usage
	for i := 0; i < len(comps) && i < topCompsLimit; i++ {
		res.Summary.TopComps = append(res.Summary.TopComps, comps[i].ID)
	}

	res.Units = e.entityStats(comps, len(cands), unitIDs, catalog.KindUnit)
	res.Items = e.entityStats(comps, len(cands), itemIDs, catalog.KindItem)
	res.Traits = e.entityStats(comps, len(cands), traitIDs, catalog.KindTrait)
	res.Comps = compStats(comps, len(cands))

	return res
}

// flatten turns every participant into a candidate with resolved display data.
func (e *Engine) flatten(matches []match.Match) []candidate {
	var out []candidate
	for _, m := range matches {
		for _, p := range m.Participants {
			c := candidate{
				placement: p.Placement,
				partition: m.Partition,
				traits:    e.traits(p.Traits),
				units:     e.units(p.Units),
			}
			c.key = compositionKey(c.traits)
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) traits(in []match.Trait) []CompTrait {
	out := make([]CompTrait, 0, len(in))
	for _, t := range in {
		if t.Tier < 1 {
			continue
		}
		out = append(out, CompTrait{
			ID:       t.Name,
			Name:     e.catalog.DisplayName(catalog.KindTrait, t.Name),
			Icon:     e.catalog.Icon(catalog.KindTrait, t.Name),
			Tier:     t.Tier,
			NumUnits: t.NumUnits,
			TierIcon: e.catalog.TierIcon(t.Name, t.NumUnits),
		})
	}
	sortTraits(out)
	return out
}

func (e *Engine) units(in []match.Unit) []CompUnit {
	out := make([]CompUnit, 0, len(in))
	for _, u := range in {
		ref, _ := e.catalog.Unit(u.CharacterID)
		unit := CompUnit{
			ID:    u.CharacterID,
			Name:  ref.Name,
			Icon:  catalog.IconPath(catalog.KindUnit, ref.Icon),
			Cost:  ref.Cost,
			Items: make([]CompItem, 0, len(u.Items)),
		}
		for _, id := range u.Items {
			it, _ := e.catalog.Item(id)
			unit.Items = append(unit.Items, CompItem{
				ID:       id,
				Name:     it.Name,
				Icon:     catalog.IconPath(catalog.KindItem, it.Icon),
				Category: it.Category,
			})
		}
		out = append(out, unit)
	}
	return out
}

// sortTraits orders by tier descending, then display name.
func sortTraits(ts []CompTrait) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Tier != ts[j].Tier {
			return ts[i].Tier > ts[j].Tier
		}
		return ts[i].Name < ts[j].Name
	})
}

// compositionKey names a board after its two largest traits above the first
// tier, e.g. "4 Sorcerer & 3 Ionia".
func compositionKey(traits []CompTrait) string {
	sig := lo.Filter(traits, func(t CompTrait, _ int) bool {
		return t.Tier > 1 && t.NumUnits > 1
	})
	if len(sig) == 0 {
		return otherKey
	}
	sort.SliceStable(sig, func(i, j int) bool {
		if sig[i].NumUnits != sig[j].NumUnits {
			return sig[i].NumUnits > sig[j].NumUnits
		}
		return sig[i].Name < sig[j].Name
	})
	if len(sig) > 2 {
		sig = sig[:2]
	}
	parts := lo.Map(sig, func(t CompTrait, _ int) string {
		return fmt.Sprintf("%d %s", t.NumUnits, t.Name)
	})
	return strings.Join(parts, " & ")
}

var whitespace = regexp.MustCompile(`\s+`)

// compositionID derives a URL-safe id from a composition name.
func compositionID(name string) string {
	return strings.ToLower(whitespace.ReplaceAllString(name, "-"))
}

// group builds the compositions that clear the noise floor, ordered by
// count descending then id.
func (e *Engine) group(cands []candidate) []Composition {
	groups := make(map[string][]candidate)
	var keys []string
	for _, c := range cands {
		if c.key == otherKey {
			continue
		}
		if _, ok := groups[c.key]; !ok {
			keys = append(keys, c.key)
		}
		groups[c.key] = append(groups[c.key], c)
	}

	comps := make([]Composition, 0, len(keys))
	for _, key := range keys {
		members := groups[key]
		if len(members) < minGroupSize {
			continue
		}
		comps = append(comps, e.composition(key, members, len(cands)))
	}

	sort.SliceStable(comps, func(i, j int) bool {
		if comps[i].Count != comps[j].Count {
			return comps[i].Count > comps[j].Count
		}
		return comps[i].ID < comps[j].ID
	})
	return comps
}

func (e *Engine) composition(name string, members []candidate, total int) Composition {
	n := float64(len(members))
	wins := lo.CountBy(members, func(c candidate) bool { return c.won() })
	top4 := lo.CountBy(members, func(c candidate) bool { return c.topFour() })
	placementSum := lo.SumBy(members, func(c candidate) int { return c.placement })

	traits := lo.UniqBy(lo.FlatMap(members, func(c candidate, _ int) []CompTrait {
		return c.traits
	}), func(t CompTrait) string { return t.ID })
	sortTraits(traits)

	regions := make(map[string]int)
	for _, c := range members {
		regions[c.partition]++
	}

	return Composition{
		ID:            compositionID(name),
		Name:          name,
		Icon:          compositionIcon(traits),
		Count:         len(members),
		AvgPlacement:  clampPlacement(float64(placementSum) / n),
		WinRate:       clampRate(float64(wins) / n * 100),
		Top4Rate:      clampRate(float64(top4) / n * 100),
		PlayRate:      clampRate(n / float64(total) * 100),
		PlacementData: placementHistogram(members),
		Traits:        traits,
		Units:         mergeUnits(members),
		Regions:       regions,
	}
}

// compositionIcon uses the first trait above the first tier, else the first trait.
func compositionIcon(traits []CompTrait) string {
	pick := func(t CompTrait) string {
		if t.TierIcon != "" {
			return t.TierIcon
		}
		return t.Icon
	}
	for _, t := range traits {
		if t.Tier > 1 {
			return pick(t)
		}
	}
	if len(traits) > 0 {
		return pick(traits[0])
	}
	return ""
}

// placementHistogram counts the observed placements, ascending.
func placementHistogram(members []candidate) []PlacementCount {
	var counts [match.MaxPlacement + 1]int
	for _, c := range members {
		if match.ValidPlacement(c.placement) {
			counts[c.placement]++
		}
	}
	out := []PlacementCount{}
	for p := match.MinPlacement; p <= match.MaxPlacement; p++ {
		if counts[p] > 0 {
			out = append(out, PlacementCount{Placement: p, Count: counts[p]})
		}
	}
	return out
}

// mergeUnits unions member units by id. The first occurrence supplies the
// loadout; Count is the number of occurrences.
func mergeUnits(members []candidate) []CompUnit {
	index := make(map[string]int)
	var out []CompUnit
	for _, c := range members {
		for _, u := range c.units {
			if i, ok := index[u.ID]; ok {
				out[i].Count++
				continue
			}
			u.Count = 1
			u.Items = append([]CompItem(nil), u.Items...)
			if u.Items == nil {
				u.Items = []CompItem{}
			}
			index[u.ID] = len(out)
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	if out == nil {
		out = []CompUnit{}
	}
	return out
}

func clampRate(v float64) float64 {
	return clamp(v, 0, 100)
}

func clampPlacement(v float64) float64 {
	return clamp(v, match.MinPlacement, match.MaxPlacement)
}

func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
