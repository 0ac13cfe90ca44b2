package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("PRICE_CACHE_TTL", "30s"); err != nil {
		t.Fatalf("Failed to set PRICE_CACHE_TTL: %v", err)
	}
	if err := os.Setenv("WALLET_ADDRESSES", "0xabc, 0xdef"); err != nil {
		t.Fatalf("Failed to set WALLET_ADDRESSES: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("PRICE_CACHE_TTL")
		_ = os.Unsetenv("WALLET_ADDRESSES")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Reconcile.PriceCacheTTL != 30*time.Second {
		t.Errorf("Reconcile.PriceCacheTTL = %v, want %v", cfg.Reconcile.PriceCacheTTL, 30*time.Second)
	}

	if len(cfg.Chains.Wallets) != 2 || cfg.Chains.Wallets[1] != "0xdef" {
		t.Errorf("Chains.Wallets = %v, want [0xabc 0xdef]", cfg.Chains.Wallets)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Reconcile.PercentThreshold != 5.0 {
		t.Errorf("PercentThreshold = %v, want 5.0", cfg.Reconcile.PercentThreshold)
	}
	if cfg.Reconcile.AbsoluteThreshold != 500.0 {
		t.Errorf("AbsoluteThreshold = %v, want 500.0", cfg.Reconcile.AbsoluteThreshold)
	}
	if cfg.Reconcile.CycleInterval != 24*time.Hour {
		t.Errorf("CycleInterval = %v, want 24h", cfg.Reconcile.CycleInterval)
	}
	if cfg.Reconcile.ScanDepth != 100 {
		t.Errorf("ScanDepth = %v, want 100", cfg.Reconcile.ScanDepth)
	}
}

func TestGetEnvAsDuration_Invalid(t *testing.T) {
	if err := os.Setenv("TEST_DURATION", "not-a-duration"); err != nil {
		t.Fatalf("Failed to set TEST_DURATION: %v", err)
	}
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvAsDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvAsDuration() = %v, want fallback %v", got, time.Minute)
	}
}

func TestDefaultCategoryPatterns_Order(t *testing.T) {
	patterns := DefaultCategoryPatterns()

	want := []string{"real_estate", "bond", "cash", "fund"}
	if len(patterns) != len(want) {
		t.Fatalf("got %d categories, want %d", len(patterns), len(want))
	}
	for i, category := range want {
		if patterns[i].Category != category {
			t.Errorf("patterns[%d].Category = %q, want %q", i, patterns[i].Category, category)
		}
	}
}

func TestLoadCategoryPatterns_EmptyPathUsesDefaults(t *testing.T) {
	patterns, err := LoadCategoryPatterns("")
	if err != nil {
		t.Fatalf("LoadCategoryPatterns() error = %v", err)
	}
	if len(patterns) == 0 {
		t.Fatal("expected built-in defaults for an empty path")
	}
	if patterns[0].Category != "real_estate" {
		t.Errorf("first category = %q, want real_estate", patterns[0].Category)
	}
}

func TestLoadCategoryPatterns_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	content := `[
		{"category": "crypto", "names": ["wrapped"], "prefixes": []},
		{"category": "fund", "names": ["etf"], "prefixes": ["LU"]}
	]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write pattern file: %v", err)
	}

	patterns, err := LoadCategoryPatterns(path)
	if err != nil {
		t.Fatalf("LoadCategoryPatterns() error = %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("got %d categories, want 2", len(patterns))
	}
	if patterns[0].Category != "crypto" || patterns[1].Prefixes[0] != "LU" {
		t.Errorf("parsed patterns = %+v", patterns)
	}
}

func TestLoadCategoryPatterns_Errors(t *testing.T) {
	if _, err := LoadCategoryPatterns("does/not/exist.json"); err == nil {
		t.Error("expected error for a missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte("[]"), 0o600); err != nil {
		t.Fatalf("failed to write pattern file: %v", err)
	}
	if _, err := LoadCategoryPatterns(empty); err == nil {
		t.Error("expected error for an empty pattern list")
	}
}
