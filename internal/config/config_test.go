package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
rates:
  endpoint: "https://api.example.com/convert"
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Fatalf("logging.level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Rates.Base != "USD" {
		t.Fatalf("rates.base = %q, want USD", cfg.Rates.Base)
	}
	if len(cfg.Rates.Currencies) == 0 {
		t.Fatal("default currencies not applied")
	}
	if cfg.Scheduler.Workers != 2 || cfg.Scheduler.QueueSize != 64 {
		t.Fatalf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.Jobs.RefreshRates.Schedule != "1h" {
		t.Fatalf("refresh_rates.schedule = %q, want 1h", cfg.Jobs.RefreshRates.Schedule)
	}
	if cfg.Jobs.ResetUsage.Schedule != "@midnight-utc" {
		t.Fatalf("reset_usage.schedule = %q, want @midnight-utc", cfg.Jobs.ResetUsage.Schedule)
	}
	if cfg.Jobs.PruneCache.Retention != "168h" {
		t.Fatalf("prune_cache.retention = %q, want 168h", cfg.Jobs.PruneCache.Retention)
	}
	if cfg.Monitoring.MaxConsecutiveFailures != 3 {
		t.Fatalf("monitoring threshold = %d, want 3", cfg.Monitoring.MaxConsecutiveFailures)
	}

	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
rates:
  endpoint: "https://api.example.com/convert"
  endpoynt: "typo"
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
rates:
  endpoint: "https://api.example.com/convert"
jobs:
  prune_cache:
    retention: "one week"
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for invalid retention")
	}
}

func TestValidateRequiresEndpointOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected endpoint error with refresh enabled")
	}

	f := false
	cfg.Jobs.RefreshRates.Enabled = &f
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error with refresh disabled: %v", err)
	}
}

func TestJobEnabledSemantics(t *testing.T) {
	t.Parallel()
	var j JobConfig
	if !j.IsEnabled() {
		t.Fatal("omitted enabled should mean enabled")
	}
	f := false
	j.Enabled = &f
	if j.IsEnabled() {
		t.Fatal("explicit false should disable")
	}
}

func TestDurationHelper(t *testing.T) {
	t.Parallel()
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("empty = %v, want default", got)
	}
	if got := Duration("30s", time.Minute); got != 30*time.Second {
		t.Fatalf("30s = %v", got)
	}
	if got := Duration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("garbage = %v, want default", got)
	}
}

func TestCommitDedupesByHash(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
rates:
  endpoint: "https://api.example.com/convert"
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.lastHash == 0 {
		t.Fatal("commit did not record content hash")
	}
	h := m.lastHash
	m.Commit(cfg)
	if m.lastHash != h {
		t.Fatal("hash changed for identical config")
	}
}
