package combo

import (
	"fmt"
	"testing"

	"github.com/Sternrassler/tft-meta-stats/pkg/aggregate"
)

func comp(id string, winRate float64, units ...aggregate.CompUnit) aggregate.Composition {
	return aggregate.Composition{ID: id, WinRate: winRate, Units: units}
}

func loadout(unitID string, items ...string) aggregate.CompUnit {
	u := aggregate.CompUnit{ID: unitID}
	for _, it := range items {
		u.Items = append(u.Items, aggregate.CompItem{ID: it})
	}
	return u
}

func usage(unitID string, comps ...string) aggregate.UnitWithItem {
	return aggregate.UnitWithItem{ID: unitID, RelatedComps: comps}
}

func TestDiscover(t *testing.T) {
	comps := []aggregate.Composition{
		comp("c1", 60, loadout("Ahri", "JG", "Blue", "Shojin")),
		comp("c2", 20, loadout("Ahri", "JG", "Blue")),
	}

	got := Discover("JG", comps, []aggregate.UnitWithItem{usage("Ahri", "c1", "c2")})
	if len(got) != 1 {
		t.Fatalf("got %d combos, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.MainItem != "JG" || fmt.Sprint(c.Items) != "[JG Blue Shojin]" {
		t.Errorf("combo = %+v", c)
	}
	if c.WinRate != 50 {
		t.Errorf("WinRate = %v, want 50", c.WinRate)
	}
	if c.Frequency != 3 {
		t.Errorf("Frequency = %d, want 3", c.Frequency)
	}
}

func TestDiscover_Empty(t *testing.T) {
	comps := []aggregate.Composition{comp("c1", 50, loadout("Ahri", "JG", "Blue"))}

	tests := []struct {
		name   string
		usages []aggregate.UnitWithItem
	}{
		{"no usages", nil},
		{"single candidate", []aggregate.UnitWithItem{usage("Ahri", "c1")}},
		{"unknown comp", []aggregate.UnitWithItem{usage("Ahri", "missing")}},
		{"unit not in comp", []aggregate.UnitWithItem{usage("Poppy", "c1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discover("JG", comps, tt.usages)
			if got == nil || len(got) != 0 {
				t.Errorf("got %+v, want empty list", got)
			}
		})
	}
}

func TestDiscover_MainItemMustBeOnUnit(t *testing.T) {
	comps := []aggregate.Composition{
		comp("c1", 50, loadout("Ahri", "Blue", "Shojin")),
	}
	if got := Discover("JG", comps, []aggregate.UnitWithItem{usage("Ahri", "c1")}); len(got) != 0 {
		t.Errorf("got %+v, want empty list", got)
	}
}

func TestDiscover_ZeroWinRateDropped(t *testing.T) {
	comps := []aggregate.Composition{
		comp("c1", 0, loadout("Ahri", "JG", "Blue", "Shojin")),
	}
	if got := Discover("JG", comps, []aggregate.UnitWithItem{usage("Ahri", "c1")}); len(got) != 0 {
		t.Errorf("got %+v, want empty list", got)
	}
}

func TestDiscover_TopFiveCandidates(t *testing.T) {
	comps := []aggregate.Composition{
		comp("c1", 40, loadout("Ahri", "JG", "A", "B", "C", "D", "E", "F", "G")),
		comp("c2", 10, loadout("Ahri", "JG", "A", "B", "C", "D", "E")),
	}

	got := Discover("JG", comps, []aggregate.UnitWithItem{usage("Ahri", "c1", "c2")})
	if len(got) != 10 {
		t.Fatalf("got %d combos, want 10 pairs of 5 candidates", len(got))
	}
	for _, c := range got {
		for _, id := range c.Items[1:] {
			if id == "F" || id == "G" {
				t.Errorf("low-frequency candidate %s used: %+v", id, c)
			}
		}
		if c.Frequency != 4 || c.WinRate != 25 {
			t.Errorf("combo = %+v", c)
		}
	}
}

func TestDiscover_SortedByWinRate(t *testing.T) {
	comps := []aggregate.Composition{
		comp("c1", 80, loadout("Ahri", "JG", "A", "B")),
		comp("c2", 20, loadout("Poppy", "JG", "C")),
		comp("c3", 20, loadout("Poppy", "JG", "C")),
	}
	usages := []aggregate.UnitWithItem{usage("Ahri", "c1"), usage("Poppy", "c2", "c3")}

	got := Discover("JG", comps, usages)
	if len(got) != 3 {
		t.Fatalf("got %d combos, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].WinRate > got[i-1].WinRate {
			t.Errorf("combos not sorted: %+v", got)
		}
	}
	if fmt.Sprint(got[0].Items) != "[JG A B]" {
		t.Errorf("best combo = %+v", got[0])
	}
}

func TestDiscoverAll(t *testing.T) {
	res := &aggregate.Result{
		Compositions: []aggregate.Composition{
			comp("c1", 60, loadout("Ahri", "JG", "Blue", "Shojin")),
		},
		UnitsByItem: map[string][]aggregate.UnitWithItem{
			"JG":     {usage("Ahri", "c1")},
			"Blue":   {usage("Ahri", "c1")},
			"Shojin": {usage("Ahri", "c1")},
		},
	}

	all := DiscoverAll(res)
	if len(all) != 3 {
		t.Fatalf("got %d items, want 3", len(all))
	}
	for item, combos := range all {
		if len(combos) != 1 || combos[0].MainItem != item || combos[0].WinRate != 60 {
			t.Errorf("%s: %+v", item, combos)
		}
	}
}

func TestForItem_StoredResult(t *testing.T) {
	usages := []aggregate.UnitWithItem{usage("Ahri", "c1")}
	c1 := comp("c1", 60, loadout("Ahri", "JG", "Blue", "Shojin"))
	c1.Units[0].Items[0].UnitsWithItem = usages

	// UnitsByItem is not persisted; usages come from the composition items.
	res := &aggregate.Result{Compositions: []aggregate.Composition{c1}}

	if got := Usages(res, "JG"); len(got) != 1 || got[0].ID != "Ahri" {
		t.Fatalf("Usages = %+v", got)
	}
	if got := Usages(res, "Unknown"); got != nil {
		t.Errorf("Usages(Unknown) = %+v", got)
	}

	combos := ForItem(res, "JG")
	if len(combos) != 1 || combos[0].WinRate != 60 {
		t.Errorf("ForItem = %+v", combos)
	}
	if got := ForItem(res, "Unknown"); len(got) != 0 {
		t.Errorf("ForItem(Unknown) = %+v", got)
	}
}
