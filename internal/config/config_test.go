package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8743 {
		t.Fatalf("default port = %d, want 8743", cfg.Server.Port)
	}
	if cfg.Addr() != "0.0.0.0:8743" {
		t.Fatalf("Addr = %q", cfg.Addr())
	}
	if filepath.Base(cfg.DBPath()) != "eventarr.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("EVENTARR_SERVER_PORT", "9001")
	t.Setenv("EVENTARR_LOGGING_LEVEL", "debug")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Fatalf("port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "server:\n  port: 7000\ndata:\n  dir: " + dir + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Data.Dir != dir {
		t.Fatalf("data dir = %q, want %q", cfg.Data.Dir, dir)
	}
}

func TestLoadRejectsBadLevel(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("EVENTARR_LOGGING_LEVEL", "loud")
	if _, err := Load(); err == nil {
		t.Fatal("want validation error for bad log level")
	}
}
