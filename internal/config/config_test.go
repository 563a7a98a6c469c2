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
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.UpstreamTimeout.Value() != 10*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.UpstreamTimeout.Value())
	}
}

func TestLoadTOMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weatherwire.toml")
	data := `
listen_addr = ":9090"
upstream_timeout = "30s"
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("file did not override listen addr: %s", cfg.ListenAddr)
	}
	if cfg.UpstreamTimeout.Value() != 30*time.Second {
		t.Fatalf("file did not override timeout: %v", cfg.UpstreamTimeout.Value())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("file did not override log level: %s", cfg.LogLevel)
	}
	// Unset keys keep their defaults.
	if cfg.UpstreamBaseURL != "https://api.weather.gov" {
		t.Fatalf("default lost: %s", cfg.UpstreamBaseURL)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weatherwire.toml")
	if err := os.WriteFile(path, []byte(`listen_addr = ":9090"`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WEATHERWIRE_LISTEN_ADDR", ":7070")
	t.Setenv("WEATHERWIRE_UPSTREAM_TIMEOUT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("env did not win: %s", cfg.ListenAddr)
	}
	if cfg.UpstreamTimeout.Value() != 5*time.Second {
		t.Fatalf("env timeout not applied: %v", cfg.UpstreamTimeout.Value())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("WEATHERWIRE_LOG_LEVEL", "loud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
