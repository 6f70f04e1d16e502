package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validYAML() string {
	return `
environment:
  mode: paper
  log_level: info
broker:
  provider: tradeoracle-test
  api_key: key123
  account_id: acct123
  paper_base_url: https://paper.example.com
schedule:
  timezone: America/New_York
strategies:
  iv_mean_reversion:
    enabled: true
    underlyings: [SPY]
  iron_condor:
    enabled: true
    underlyings: [SPY]
  momentum:
    enabled: true
    underlyings: [SPY]
    benchmark: QQQ
storage:
  path: ./data/store.json
dashboard:
  enabled: false
`
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_ValidConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, validYAML())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Schedule.MonitorInterval != defaultMonitorInterval {
		t.Fatalf("expected default monitor interval, got %s", cfg.Schedule.MonitorInterval)
	}
	if cfg.Schedule.IronCondorStart != "09:31" || cfg.Schedule.IronCondorEnd != "09:45" {
		t.Fatalf("expected default iron condor window, got %s-%s", cfg.Schedule.IronCondorStart, cfg.Schedule.IronCondorEnd)
	}
	if cfg.Dashboard.Port != defaultDashboardPort {
		t.Fatalf("expected default dashboard port, got %d", cfg.Dashboard.Port)
	}
	if !cfg.IsPaperTrading() {
		t.Fatalf("expected paper trading mode")
	}
	if cfg.BrokerBaseURL() != "https://paper.example.com" {
		t.Fatalf("expected paper base url selected, got %s", cfg.BrokerBaseURL())
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, validYAML()+"\nbogus_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoad_RejectsMissingPaperURLInPaperMode(t *testing.T) {
	bad := `
environment:
  mode: paper
  log_level: info
broker:
  provider: tradeoracle-test
  api_key: key123
  account_id: acct123
strategies:
  iv_mean_reversion:
    enabled: true
storage:
  path: ./data/store.json
`
	path := writeTempConfig(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing paper_base_url")
	}
}

func TestLoad_RejectsNoStrategyEnabled(t *testing.T) {
	bad := `
environment:
  mode: paper
  log_level: info
broker:
  provider: tradeoracle-test
  api_key: key123
  account_id: acct123
  paper_base_url: https://paper.example.com
storage:
  path: ./data/store.json
`
	path := writeTempConfig(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when no strategy is enabled")
	}
}

func TestIsWithinWindow(t *testing.T) {
	path := writeTempConfig(t, validYAML())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loc, _ := time.LoadLocation("America/New_York")
	inside := time.Date(2025, time.December, 6, 9, 35, 0, 0, loc)
	outside := time.Date(2025, time.December, 6, 12, 0, 0, 0, loc)

	ok, err := cfg.IsWithinWindow(cfg.Schedule.IronCondorStart, cfg.Schedule.IronCondorEnd, inside)
	if err != nil || !ok {
		t.Fatalf("expected inside window true, got %v err=%v", ok, err)
	}
	ok, err = cfg.IsWithinWindow(cfg.Schedule.IronCondorStart, cfg.Schedule.IronCondorEnd, outside)
	if err != nil || ok {
		t.Fatalf("expected outside window false, got %v err=%v", ok, err)
	}
}
