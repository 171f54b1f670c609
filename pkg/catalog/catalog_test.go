package catalog

import (
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"units.json": {Data: []byte(`{"units": {
			"TFT9_Ahri": {"name": "Ahri", "icon": "ahri.png", "cost": 4, "traits": {"Set9_Sorcerer": 1}},
			"TFT9_Poppy": {"name": "Poppy", "cost": 1}
		}}`)},
		"items.json": {Data: []byte(`{"items": {
			"TFT_Item_JeweledGauntlet": {"name": "Jeweled Gauntlet", "icon": "jg.png", "category": "completed"}
		}}`)},
		"traits.json": {Data: []byte(`{
			"origins": {"Set9_Ionia": {"name": "Ionia", "icon": "ionia.png", "breakpoints": [6, 3, 9]}},
			"classes": {"Set9_Sorcerer": {"name": "Sorcerer", "icon": "sorcerer.png", "breakpoints": [2, 4, 6, 8, 10]}}
		}`)},
	}
}

func TestLoad(t *testing.T) {
	c, err := Load(testFS())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if u, ok := c.Unit("TFT9_Ahri"); !ok || u.Name != "Ahri" || u.Cost != 4 {
		t.Errorf("Unit(Ahri) = %+v, %v", u, ok)
	}
	if u, _ := c.Unit("TFT9_Poppy"); u.Icon != DefaultIcon {
		t.Errorf("missing icon not defaulted: %q", u.Icon)
	}
	if _, ok := c.Trait("Set9_Ionia"); !ok {
		t.Error("origin not loaded")
	}
	if _, ok := c.Trait("Set9_Sorcerer"); !ok {
		t.Error("class not loaded")
	}
	if c.Cost("TFT9_Ahri") != 4 || c.Cost("unknown") != 0 {
		t.Error("unexpected costs")
	}
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	c, err := Load(fstest.MapFS{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := c.DisplayName(KindUnit, "TFT9_Ahri"); got != "TFT9_Ahri" {
		t.Errorf("DisplayName = %q, want id fallback", got)
	}
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(fstest.MapFS{"items.json": {Data: []byte(`{"items": [`)}})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDisplayName(t *testing.T) {
	c, _ := Load(testFS())

	tests := []struct {
		kind Kind
		id   string
		want string
	}{
		{KindUnit, "TFT9_Ahri", "Ahri"},
		{KindItem, "TFT_Item_JeweledGauntlet", "Jeweled Gauntlet"},
		{KindTrait, "Set9_Sorcerer", "Sorcerer"},
		{KindTrait, "Set9_Unknown", "Set9_Unknown"},
		{Kind("augment"), "X", "X"},
	}
	for _, tt := range tests {
		if got := c.DisplayName(tt.kind, tt.id); got != tt.want {
			t.Errorf("DisplayName(%s, %s) = %q, want %q", tt.kind, tt.id, got, tt.want)
		}
	}
}

func TestIconPath(t *testing.T) {
	tests := []struct {
		kind Kind
		file string
		want string
	}{
		{KindUnit, "ahri.png", "/assets/units/ahri.png"},
		{KindItem, "", "/assets/items/default.png"},
		{KindTrait, "/custom/icon.png", "/custom/icon.png"},
		{KindTrait, "https://cdn.example/x.png", "https://cdn.example/x.png"},
	}
	for _, tt := range tests {
		if got := IconPath(tt.kind, tt.file); got != tt.want {
			t.Errorf("IconPath(%s, %q) = %q, want %q", tt.kind, tt.file, got, tt.want)
		}
	}
}

func TestTierIcon(t *testing.T) {
	c, _ := Load(testFS())

	tests := []struct {
		trait    string
		numUnits int
		want     string
	}{
		{"Set9_Ionia", 2, "/assets/traits/ionia.png"},
		{"Set9_Ionia", 3, "/assets/traits/ionia_bronze.png"},
		{"Set9_Ionia", 6, "/assets/traits/ionia_silver.png"},
		{"Set9_Ionia", 9, "/assets/traits/ionia_gold.png"},
		{"Set9_Sorcerer", 10, "/assets/traits/sorcerer_prismatic.png"},
		{"Set9_Unknown", 4, "/assets/traits/default.png"},
	}
	for _, tt := range tests {
		if got := c.TierIcon(tt.trait, tt.numUnits); got != tt.want {
			t.Errorf("TierIcon(%s, %d) = %q, want %q", tt.trait, tt.numUnits, got, tt.want)
		}
	}
}
