package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"storage":{"driver":"mysql","dsn":"root@tcp(127.0.0.1)/agentplane"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.State.Driver != "mysql" {
		t.Fatalf("state driver should follow storage driver, got %q", cfg.State.Driver)
	}
	if cfg.State.DSN != cfg.Storage.DSN {
		t.Fatalf("state dsn should follow storage dsn, got %q", cfg.State.DSN)
	}
	if cfg.LLM.Provider != "static" || cfg.LLM.TimeoutSeconds != 30 {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if !filepath.IsAbs(cfg.Logging.AuditPath) && cfg.Logging.AuditPath == "" {
		t.Fatalf("audit path not set")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	wrong := writeConfig(t, `{"server":{"address":":1111"}}`)
	right := writeConfig(t, `{"server":{"address":":2222"}}`)
	t.Setenv(EnvConfigPath, right)

	cfg, err := Load(wrong)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":2222" {
		t.Fatalf("env override ignored, got %q", cfg.Server.Address)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Driver != "memory" || cfg.State.Driver != "memory" {
		t.Fatalf("default drivers: %+v %+v", cfg.Storage, cfg.State)
	}
}
