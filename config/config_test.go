package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `liqmon:
  name: "TestApp"
  version: "1.0"
watchlist:
  symbols: ["XRPUSDT", "DOGEUSDT"]
  thresholds_usd:
    XRPUSDT: 1000
signal:
  window_sec: 60
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Liqmon.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Liqmon.Name)
	}
	if cfg.Signal.WindowSec != 60 {
		t.Errorf("unexpected window: %d", cfg.Signal.WindowSec)
	}
	if cfg.Server.Address != "0.0.0.0:8000" {
		t.Errorf("expected default server address, got %s", cfg.Server.Address)
	}
	if got := cfg.Watchlist.USDThreshold("XRPUSDT"); got != 1000 {
		t.Errorf("unexpected XRPUSDT threshold: %v", got)
	}
	if got := cfg.Watchlist.USDThreshold("BTCUSDT"); got != 5000 {
		t.Errorf("expected fallback threshold 5000, got %v", got)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	t.Setenv("WATCHLIST", "btcusdt, ethusdt")
	t.Setenv("THRESHOLDS_USD", `{"BTCUSDT": 25000}`)
	t.Setenv("MIN_TABLE_USD", "100")
	t.Setenv("WINDOW_SEC", "300")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Watchlist.Symbols) != 2 || cfg.Watchlist.Symbols[0] != "BTCUSDT" {
		t.Errorf("watchlist override not applied: %v", cfg.Watchlist.Symbols)
	}
	if got := cfg.Watchlist.USDThreshold("BTCUSDT"); got != 25000 {
		t.Errorf("thresholds override not merged: %v", got)
	}
	// file value survives the merge
	if got := cfg.Watchlist.USDThreshold("XRPUSDT"); got != 1000 {
		t.Errorf("existing threshold lost in merge: %v", got)
	}
	if cfg.Watchlist.MinTableUSD != 100 {
		t.Errorf("min_table_usd override not applied: %v", cfg.Watchlist.MinTableUSD)
	}
	if cfg.Signal.WindowSec != 300 {
		t.Errorf("window_sec override not applied: %v", cfg.Signal.WindowSec)
	}
}

func TestLoadConfigMalformedJSONOverride(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	t.Setenv("THRESHOLDS_USD", "{not json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Watchlist.USDThreshold("XRPUSDT"); got != 1000 {
		t.Errorf("malformed override should be ignored, got %v", got)
	}
}

func TestWatchlistContains(t *testing.T) {
	w := WatchlistConfig{Symbols: []string{"XRPUSDT"}}
	if !w.Contains("xrpusdt") {
		t.Error("Contains should be case insensitive")
	}
	if w.Contains("BTCUSDT") {
		t.Error("Contains matched a symbol outside the watchlist")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := AppEnvironment(); got != EnvironmentProduction {
		t.Errorf("expected production, got %s", got)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Error("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development should not be production-like")
	}
}
