package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("default addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Storage.Timeout != 5*time.Second {
		t.Fatalf("default storage timeout = %v, want 5s", cfg.Storage.Timeout)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should default to enabled")
	}
	if cfg.Audit.Exchange != "staffsched.audit" {
		t.Fatalf("default audit exchange = %q", cfg.Audit.Exchange)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
app:
  env: dev
http:
  addr: ":9090"
storage:
  timeout: 2s
rate_limits:
  slot.claim:
    limit: 3
    window: 1s
grants:
  - workspace_id: ws-1
    member_id: alice
    capabilities: [manage_sessions]
    roles: [trainer]
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.App.Env != "dev" || cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Storage.Timeout != 2*time.Second {
		t.Fatalf("storage timeout = %v, want 2s", cfg.Storage.Timeout)
	}
	rule, ok := cfg.RateLimits["slot.claim"]
	if !ok || rule.Limit != 3 || rule.Window != time.Second {
		t.Fatalf("rate limit rule = %+v ok=%v", rule, ok)
	}
	if len(cfg.Grants) != 1 || cfg.Grants[0].MemberID != "alice" {
		t.Fatalf("grants = %+v", cfg.Grants)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
storage:
  timeout: 0s
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for zero storage timeout")
	}
}
