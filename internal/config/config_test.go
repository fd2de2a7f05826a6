package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("httpAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.Session.TTL != 10*time.Minute {
		t.Fatalf("session ttl = %s, want 10m", cfg.Session.TTL)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cliffhop.yaml")
	data := []byte("httpAddr: \":9100\"\nsession:\n  ttl: 2m\n  rateLimit: 5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("httpAddr = %q, want :9100", cfg.HTTPAddr)
	}
	if cfg.Session.TTL != 2*time.Minute || cfg.Session.RateLimit != 5 {
		t.Fatalf("session = %+v, want file values", cfg.Session)
	}
	if cfg.KeyframeInterval != 30 {
		t.Fatalf("keyframeInterval = %d, want untouched default 30", cfg.KeyframeInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cliffhop.yaml")
	if err := os.WriteFile(path, []byte("httpAddr: \":9100\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CLIFFHOP_HTTP_ADDR", ":9200")
	t.Setenv("CLIFFHOP_SESSION_TTL", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9200" {
		t.Fatalf("httpAddr = %q, want env override :9200", cfg.HTTPAddr)
	}
	if cfg.Session.TTL != 90*time.Second {
		t.Fatalf("session ttl = %s, want 90s", cfg.Session.TTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CLIFFHOP_SESSION_TTL", "-5s")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for negative session ttl")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing named file")
	}
}
