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
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("port %q, want 8080", cfg.Server.Port)
	}
	if cfg.Broker.BridgeTimeout != 10*time.Second {
		t.Fatalf("bridge timeout %v, want 10s", cfg.Broker.BridgeTimeout)
	}
	if cfg.Policy.TickInterval != time.Second {
		t.Fatalf("tick interval %v, want 1s", cfg.Policy.TickInterval)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
broker:
  account: "8112223411"
  bridge_timeout: 2s
store:
  history_dir: /tmp/history
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port %q, want 9090", cfg.Server.Port)
	}
	if cfg.Broker.Account != "8112223411" {
		t.Fatalf("account %q", cfg.Broker.Account)
	}
	if cfg.Broker.BridgeTimeout != 2*time.Second {
		t.Fatalf("bridge timeout %v, want 2s", cfg.Broker.BridgeTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("token ttl %v, want 1h", cfg.Auth.TokenTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DEBUG", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level %q, want debug", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
broker:
  sim_min_latency: 100ms
  sim_max_latency: 10ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}
