package aggregate

// Result is the output of one aggregation pass. Units, Items, Traits, Comps
// and UnitsByItem are persisted separately and therefore not part of the
// compositions payload.
type Result struct {
	Compositions []Composition `json:"compositions"`
	Summary      Summary       `json:"summary"`
	Partition    string        `json:"region"`

	Units       []EntityStat              `json:"-"`
	Items       []EntityStat              `json:"-"`
	Traits      []EntityStat              `json:"-"`
	Comps       []EntityStat              `json:"-"`
	UnitsByItem map[string][]UnitWithItem `json:"-"`
}

// Summary describes the corpus an aggregation ran over.
type Summary struct {
	TotalGames   int      `json:"totalGames"`
	AvgPlacement float64  `json:"avgPlacement"`
	TopComps     []string `json:"topComps"`
}

// Composition is a recurring team archetype keyed by its two dominant traits.
type Composition struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Icon          string           `json:"icon"`
	Count         int              `json:"count"`
	AvgPlacement  float64          `json:"avgPlacement"`
	WinRate       float64          `json:"winRate"`
	Top4Rate      float64          `json:"top4Rate"`
	PlayRate      float64          `json:"playRate"`
	PlacementData []PlacementCount `json:"placementData"`
	Traits        []CompTrait      `json:"traits"`
	Units         []CompUnit       `json:"units"`
	Regions       map[string]int   `json:"regions"`
}

// PlacementCount is one bucket of a placement histogram.
type PlacementCount struct {
	Placement int `json:"placement"`
	Count     int `json:"count"`
}

// CompTrait is an active trait on a board.
type CompTrait struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Tier     int    `json:"tier"`
	NumUnits int    `json:"numUnits"`
	TierIcon string `json:"tierIcon"`
}

// CompUnit is a unit as it appears in a composition.
type CompUnit struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Icon      string     `json:"icon"`
	Cost      int        `json:"cost"`
	Count     int        `json:"count,omitempty"`
	Items     []CompItem `json:"items"`
	BestItems []ItemStat `json:"bestItems,omitempty"`
}

// CompItem is an item carried by a composition unit.
type CompItem struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Icon          string         `json:"icon"`
	Category      string         `json:"category,omitempty"`
	UnitsWithItem []UnitWithItem `json:"unitsWithItem,omitempty"`
}

// ItemStat is an item's performance on one unit.
type ItemStat struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Icon         string  `json:"icon"`
	Category     string  `json:"category,omitempty"`
	Count        int     `json:"count"`
	AvgPlacement float64 `json:"avgPlacement"`
	WinRate      float64 `json:"winRate"`
	Top4Rate     float64 `json:"top4Rate"`
}

// UnitWithItem is a unit's performance while carrying one item, with the
// compositions the pairing was seen in.
type UnitWithItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Icon         string   `json:"icon"`
	Cost         int      `json:"cost"`
	Count        int      `json:"count"`
	AvgPlacement float64  `json:"avgPlacement"`
	WinRate      float64  `json:"winRate"`
	Top4Rate     float64  `json:"top4Rate"`
	RelatedComps []string `json:"relatedComps"`
}

// EntityStat is the aggregate performance of a unit, item, trait or composition.
type EntityStat struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Icon         string  `json:"icon"`
	Count        int     `json:"count"`
	AvgPlacement float64 `json:"avgPlacement"`
	WinRate      float64 `json:"winRate"`
	Top4Rate     float64 `json:"top4Rate"`
	PlayRate     float64 `json:"playRate"`
}

// EntitiesPayload is the persisted shape of an entity stats kind.
type EntitiesPayload struct {
	Entities []EntityStat `json:"entities"`
	Region   string       `json:"region"`
}

// Entities returns the stats for a kind ("units", "items", "traits" or
// "comps"), or nil for an unknown kind.
func (r *Result) Entities(kind string) []EntityStat {
	switch kind {
	case "units":
		return r.Units
	case "items":
		return r.Items
	case "traits":
		return r.Traits
	case "comps":
		return r.Comps
	}
	return nil
}
