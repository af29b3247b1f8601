package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != "127.0.0.1:8123" {
		t.Errorf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.Database.Path != "trace.db" {
		t.Errorf("expected trace.db, got %s", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("expected info/text logging, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[server]
addr = "0.0.0.0:9000"

[view]
export_path = "/tmp/trace.html"
`), 0644)

	cfg := Load(path)
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("expected 0.0.0.0:9000, got %s", cfg.Server.Addr)
	}
	if cfg.View.ExportPath != "/tmp/trace.html" {
		t.Errorf("expected export path, got %s", cfg.View.ExportPath)
	}
	// Defaults preserved
	if cfg.Database.Path != "trace.db" {
		t.Errorf("default should be preserved, got %s", cfg.Database.Path)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SPANTREE_DB", "/var/lib/spantree/run.db")
	t.Setenv("SPANTREE_LOG_LEVEL", "debug")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Database.Path != "/var/lib/spantree/run.db" {
		t.Errorf("expected env db path, got %s", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
	// File missing: defaults still apply elsewhere
	if cfg.Server.Addr != "127.0.0.1:8123" {
		t.Errorf("expected default addr, got %s", cfg.Server.Addr)
	}
}
