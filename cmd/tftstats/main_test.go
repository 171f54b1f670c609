package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/tft-meta-stats/internal/config"
	"github.com/Sternrassler/tft-meta-stats/pkg/catalog"
	"github.com/Sternrassler/tft-meta-stats/pkg/client"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StoreDriver:         config.DriverMemory,
		SQLitePath:          filepath.Join(t.TempDir(), "tftstats.db"),
		MatchesPerPartition: 30,
		RateShortWindow:     time.Second,
		RateShortMax:        20,
		RateLongWindow:      2 * time.Minute,
		RateLongMax:         100,
	}
}

func TestLoadCatalog(t *testing.T) {
	c, err := loadCatalog("")
	if err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if got := c.DisplayName(catalog.KindUnit, "TFT9_Ahri"); got != "TFT9_Ahri" {
		t.Errorf("DisplayName = %q, want id fallback", got)
	}

	dir := t.TempDir()
	units := `{"units": {"TFT9_Ahri": {"name": "Ahri", "icon": "ahri.png", "cost": 4}}}`
	if err := os.WriteFile(filepath.Join(dir, "units.json"), []byte(units), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err = loadCatalog(dir)
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	if got := c.DisplayName(catalog.KindUnit, "TFT9_Ahri"); got != "Ahri" {
		t.Errorf("DisplayName = %q, want Ahri", got)
	}
	if got := c.Cost("TFT9_Ahri"); got != 4 {
		t.Errorf("Cost = %d, want 4", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "items.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCatalog(dir); err == nil {
		t.Error("expected error for malformed items.json")
	}
}

func TestOpenDeps(t *testing.T) {
	tests := []struct {
		driver string
		check  func(store.Store) bool
	}{
		{config.DriverMemory, func(s store.Store) bool { _, ok := s.(*store.Memory); return ok }},
		{config.DriverSQLite, func(s store.Store) bool { _, ok := s.(*store.SQLite); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.StoreDriver = tt.driver

			d, err := openDeps(context.Background(), cfg)
			if err != nil {
				t.Fatalf("openDeps: %v", err)
			}
			defer d.close()

			if !tt.check(d.store) {
				t.Errorf("store = %T", d.store)
			}
			if d.redis != nil {
				t.Error("redis client opened without a url")
			}
			if d.catalog == nil {
				t.Error("catalog not loaded")
			}
		})
	}
}

func TestOpenDeps_BadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "not a url"

	if _, err := openDeps(context.Background(), cfg); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestNewJob(t *testing.T) {
	d, err := openDeps(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	_, err = d.newJob()
	var cfgErr *client.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("newJob without key: err = %v, want ConfigError", err)
	}

	d.cfg.RiotAPIKey = "RGAPI-test"
	job, err := d.newJob()
	if err != nil {
		t.Fatalf("newJob: %v", err)
	}
	if job == nil {
		t.Fatal("nil job")
	}
}

func TestApp_Aggregate(t *testing.T) {
	t.Setenv("TFTSTATS_STORE_DRIVER", config.DriverMemory)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	args := []string{"tftstats", "--env-file", filepath.Join(t.TempDir(), "missing.env"), "aggregate", "--region", "na", "--region", "all"}
	if err := app.Run(args); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
}

func TestApp_RefreshRequiresAPIKey(t *testing.T) {
	t.Setenv("TFTSTATS_STORE_DRIVER", config.DriverMemory)
	t.Setenv("TFTSTATS_RIOT_API_KEY", "")
	t.Setenv("RIOT_API_KEY", "")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"tftstats", "--env-file", "", "refresh"})
	var cfgErr *client.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("refresh without key: err = %v, want ConfigError", err)
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	t.Setenv("TFTSTATS_STORE_DRIVER", "cassandra")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"tftstats", "--env-file", "", "aggregate"}); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}
