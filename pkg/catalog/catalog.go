// Package catalog holds read-only reference data for units, items and
// traits: display names, icons, unit costs and trait breakpoints. Every
// lookup falls back to the raw id when an entry is missing.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Kind selects a reference table.
type Kind string

// Reference table kinds.
const (
	KindUnit  Kind = "unit"
	KindItem  Kind = "item"
	KindTrait Kind = "trait"
)

// DefaultIcon is used when an entry has no icon.
const DefaultIcon = "default.png"

// Unit is a champion entry.
type Unit struct {
	Name   string         `json:"name"`
	Icon   string         `json:"icon"`
	Cost   int            `json:"cost"`
	Traits map[string]int `json:"traits,omitempty"`
}

// Item is an item entry.
type Item struct {
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Category string `json:"category,omitempty"`
}

// Trait is an origin or class entry. Breakpoints are the unit counts at
// which successive tiers activate, ascending.
type Trait struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Breakpoints []int  `json:"breakpoints,omitempty"`
}

// Catalog is the loaded reference data. The zero value is not usable; use
// Empty or Load.
type Catalog struct {
	units  map[string]Unit
	items  map[string]Item
	traits map[string]Trait
}

// Empty returns a catalog without entries.
func Empty() *Catalog {
	return &Catalog{
		units:  map[string]Unit{},
		items:  map[string]Item{},
		traits: map[string]Trait{},
	}
}

type unitsFile struct {
	Units map[string]Unit `json:"units"`
}

type itemsFile struct {
	Items map[string]Item `json:"items"`
}

type traitsFile struct {
	Origins map[string]Trait `json:"origins"`
	Classes map[string]Trait `json:"classes"`
}

// Load reads units.json, items.json and traits.json from fsys. A missing
// file leaves that table empty; a malformed one is an error.
func Load(fsys fs.FS) (*Catalog, error) {
	c := Empty()

	var uf unitsFile
	if err := readJSON(fsys, "units.json", &uf); err != nil {
		return nil, err
	}
	var itf itemsFile
	if err := readJSON(fsys, "items.json", &itf); err != nil {
		return nil, err
	}
	var tf traitsFile
	if err := readJSON(fsys, "traits.json", &tf); err != nil {
		return nil, err
	}

	for id, u := range uf.Units {
		c.units[id] = u
	}
	for id, it := range itf.Items {
		c.items[id] = it
	}
	for id, t := range tf.Origins {
		c.traits[id] = t
	}
	for id, t := range tf.Classes {
		c.traits[id] = t
	}
	for id, t := range c.traits {
		sort.Ints(t.Breakpoints)
		c.traits[id] = t
	}
	return c, nil
}

func readJSON(fsys fs.FS, name string, out any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Unit returns the unit entry, or a placeholder named after id.
func (c *Catalog) Unit(id string) (Unit, bool) {
	u, ok := c.units[id]
	if !ok {
		return Unit{Name: id, Icon: DefaultIcon}, false
	}
	if u.Name == "" {
		u.Name = id
	}
	if u.Icon == "" {
		u.Icon = DefaultIcon
	}
	return u, true
}

// Item returns the item entry, or a placeholder named after id.
func (c *Catalog) Item(id string) (Item, bool) {
	it, ok := c.items[id]
	if !ok {
		return Item{Name: id, Icon: DefaultIcon}, false
	}
	if it.Name == "" {
		it.Name = id
	}
	if it.Icon == "" {
		it.Icon = DefaultIcon
	}
	return it, true
}

// Trait returns the trait entry, or a placeholder named after id.
func (c *Catalog) Trait(id string) (Trait, bool) {
	t, ok := c.traits[id]
	if !ok {
		return Trait{Name: id, Icon: DefaultIcon}, false
	}
	if t.Name == "" {
		t.Name = id
	}
	if t.Icon == "" {
		t.Icon = DefaultIcon
	}
	return t, true
}

// DisplayName returns the display name for id, or id itself.
func (c *Catalog) DisplayName(kind Kind, id string) string {
	switch kind {
	case KindUnit:
		u, _ := c.Unit(id)
		return u.Name
	case KindItem:
		it, _ := c.Item(id)
		return it.Name
	case KindTrait:
		t, _ := c.Trait(id)
		return t.Name
	}
	return id
}

// Icon returns the public icon path for id.
func (c *Catalog) Icon(kind Kind, id string) string {
	switch kind {
	case KindUnit:
		u, _ := c.Unit(id)
		return IconPath(kind, u.Icon)
	case KindItem:
		it, _ := c.Item(id)
		return IconPath(kind, it.Icon)
	case KindTrait:
		t, _ := c.Trait(id)
		return IconPath(kind, t.Icon)
	}
	return IconPath(kind, DefaultIcon)
}

// IconPath returns the public path of an icon file, e.g. /assets/units/ahri.png.
// Values that already are paths are returned unchanged.
func IconPath(kind Kind, file string) string {
	if file == "" {
		file = DefaultIcon
	}
	if strings.HasPrefix(file, "/") || strings.Contains(file, "://") {
		return file
	}
	return path.Join("/assets", string(kind)+"s", file)
}

// tierNames name trait tiers from the first breakpoint upward.
var tierNames = []string{"bronze", "silver", "gold", "prismatic"}

// TierIcon returns the icon for a trait at the tier reached with numUnits.
// Traits without breakpoints, or below their first breakpoint, use the plain icon.
func (c *Catalog) TierIcon(traitID string, numUnits int) string {
	t, _ := c.Trait(traitID)
	tier := 0
	for _, bp := range t.Breakpoints {
		if numUnits >= bp {
			tier++
		}
	}
	if tier == 0 {
		return IconPath(KindTrait, t.Icon)
	}
	if tier > len(tierNames) {
		tier = len(tierNames)
	}
	ext := path.Ext(t.Icon)
	return IconPath(KindTrait, strings.TrimSuffix(t.Icon, ext)+"_"+tierNames[tier-1]+ext)
}

// Cost returns a unit's cost, zero when unknown.
func (c *Catalog) Cost(unitID string) int {
	return c.units[unitID].Cost
}
