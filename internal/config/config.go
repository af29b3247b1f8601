// Package config holds the spantreed daemon configuration.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	View     ViewConfig     `toml:"view"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ViewConfig struct {
	Addr       string `toml:"addr"`
	ExportPath string `toml:"export_path"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: "127.0.0.1:8123"},
		Database: DatabaseConfig{Path: "trace.db"},
		View:     ViewConfig{Addr: "127.0.0.1:8124"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "spantree.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("SPANTREE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SPANTREE_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SPANTREE_VIEW_ADDR"); v != "" {
		cfg.View.Addr = v
	}
	if v := os.Getenv("SPANTREE_VIEW_EXPORT"); v != "" {
		cfg.View.ExportPath = v
	}
	if v := os.Getenv("SPANTREE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SPANTREE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return cfg
}
