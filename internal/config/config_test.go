package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HTTP.BindAddress != "127.0.0.1:3000" {
		t.Fatalf("unexpected default bind address: %q", cfg.HTTP.BindAddress)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Fatalf("expected memory backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Plugins.RefreshInterval != 30*time.Second {
		t.Fatalf("unexpected default plugin refresh interval: %v", cfg.Plugins.RefreshInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("LOGLINE_BIND_ADDRESS", "0.0.0.0:8080")
	t.Setenv("LOGLINE_ENABLE_PLUGINS", "false")
	t.Setenv("LOGLINE_STORE_BACKEND", "postgres")
	t.Setenv("LOGLINE_POSTGRES_DSN", "postgres://x/y")
	t.Setenv("LOGLINE_STREAM_BUFFER_SIZE", "2000")

	LoadFromEnv(cfg)

	if cfg.HTTP.BindAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected bind address: %q", cfg.HTTP.BindAddress)
	}
	if cfg.Plugins.Enabled {
		t.Fatal("expected plugins disabled by LOGLINE_ENABLE_PLUGINS=false")
	}
	if cfg.Store.Backend != StoreBackendPostgres {
		t.Fatalf("expected postgres backend, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Postgres.DSN != "postgres://x/y" {
		t.Fatalf("unexpected DSN: %q", cfg.Store.Postgres.DSN)
	}
	if cfg.Stream.BufferSize != 2000 {
		t.Fatalf("unexpected stream buffer size: %d", cfg.Stream.BufferSize)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	const body = `{"http": {"bind_address": "10.0.0.1:1234"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.HTTP.BindAddress != "10.0.0.1:1234" {
		t.Fatalf("unexpected bind address: %q", cfg.HTTP.BindAddress)
	}
	// Unset fields retain their defaults.
	if cfg.Stream.BufferSize != 1000 {
		t.Fatalf("expected default stream buffer size to survive, got %d", cfg.Stream.BufferSize)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	const body = "http:\n  bind_address: 10.0.0.2:4321\nplugins:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.HTTP.BindAddress != "10.0.0.2:4321" {
		t.Fatalf("unexpected bind address: %q", cfg.HTTP.BindAddress)
	}
	if cfg.Plugins.Enabled {
		t.Fatal("expected plugins disabled from yaml config")
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true,
		"false": false, "0": false, "": false, "no": false,
	}
	for in, want := range cases {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}
