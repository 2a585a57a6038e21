package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/saga"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tribune.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  sqlite:
    path: ./events.db
    driver: sqlite3
    busy_timeout: 2s

policy:
  mode: file
  bundle_path: ./bundles
  watch: true
  debounce_interval: 250ms

exemptions:
  expiry_schedule: "@hourly"

saga:
  discount: 0.8
  chains:
    approval:
      max_hops: 4
      transitions:
        - {from: draft, to: under_review, probability: 0.9}
      rewards:
        active: 10

telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Store.SQLite.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %q", cfg.Store.SQLite.Driver)
	}
	if cfg.Store.SQLite.BusyTimeout != 2*time.Second {
		t.Errorf("expected busy timeout 2s, got %v", cfg.Store.SQLite.BusyTimeout)
	}
	if !cfg.Policy.Watch || cfg.Policy.DebounceInterval != 250*time.Millisecond {
		t.Errorf("unexpected policy watch settings: %+v", cfg.Policy)
	}
	if cfg.Exemptions.ExpirySchedule != "@hourly" {
		t.Errorf("expected @hourly schedule, got %q", cfg.Exemptions.ExpirySchedule)
	}
	chain := cfg.Saga.Chain(saga.KindApproval)
	if chain.Discount != 0.8 || chain.MaxHops != 4 {
		t.Errorf("unexpected approval chain: %+v", chain)
	}
	if chain.Rewards[saga.StateActive] != 10 {
		t.Errorf("expected reward 10 for active, got %g", chain.Rewards[saga.StateActive])
	}
	if cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("expected text format, got %q", cfg.Telemetry.Logging.Format)
	}
	// Defaults fill what the file left out.
	if cfg.Server.ListenAddress != DefaultServerListenAddress {
		t.Errorf("expected default listen address, got %q", cfg.Server.ListenAddress)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: [unterminated\n")

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: postgres
saga:
  chains:
    unknown_family: {}
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := make(map[string]bool)
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"store.backend", "saga.chains.unknown_family"} {
		if !fields[want] {
			t.Errorf("expected error on %s, got %v", want, verr.Errors)
		}
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: memory
policy:
  mode: file
`)

	t.Setenv("TRIBUNE_STORE_BACKEND", "sqlite")
	t.Setenv("TRIBUNE_STORE_SQLITE_BUSY_TIMEOUT", "9s")
	t.Setenv("TRIBUNE_POLICY_WATCH", "true")
	t.Setenv("TRIBUNE_SAGA_MAX_HOPS", "3")
	t.Setenv("TRIBUNE_SAGA_DISCOUNT", "0.75")
	t.Setenv("TRIBUNE_TELEMETRY_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected env backend sqlite, got %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLite.BusyTimeout != 9*time.Second {
		t.Errorf("expected busy timeout 9s, got %v", cfg.Store.SQLite.BusyTimeout)
	}
	if !cfg.Policy.Watch {
		t.Error("expected watch enabled from env")
	}
	if cfg.Saga.MaxHops != 3 || cfg.Saga.Discount != 0.75 {
		t.Errorf("unexpected saga overrides: %+v", cfg.Saga)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("TRIBUNE_SAGA_MAX_HOPS", "many")
	t.Setenv("TRIBUNE_POLICY_WATCH", "sometimes")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Saga.MaxHops != DefaultSagaMaxHops {
		t.Errorf("expected default max hops, got %d", cfg.Saga.MaxHops)
	}
	if cfg.Policy.Watch {
		t.Error("expected watch to stay disabled")
	}
}

func TestLoadConfigWithEnvOverrides_RevalidatesOverrides(t *testing.T) {
	t.Setenv("TRIBUNE_TELEMETRY_LOGGING_LEVEL", "verbose")

	_, err := LoadConfigWithEnvOverrides("")
	if err == nil {
		t.Fatal("expected validation error after override")
	}
	if !strings.Contains(err.Error(), "telemetry.logging.level") {
		t.Errorf("expected logging level error, got %v", err)
	}
}
