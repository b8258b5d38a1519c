package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeOverlay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notelock.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadOverlayFileSuccess(t *testing.T) {
	path := writeOverlay(t, "redis_url: redis://cache:6379/1\nreap_interval: 15s\nnats_url: nats://bus:4222\n")
	overlay, err := LoadOverlayFile(path)
	if err != nil {
		t.Fatalf("LoadOverlayFile returned error: %v", err)
	}
	if overlay.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("unexpected redis url: %q", overlay.RedisURL)
	}
	if overlay.ReapInterval != "15s" {
		t.Fatalf("unexpected reap interval: %q", overlay.ReapInterval)
	}
	if overlay.SeedNotes != nil {
		t.Fatalf("unset seed_notes should stay nil")
	}

	cfg := defaults()
	overlay.applyTo(cfg)
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("overlay should apply redis url")
	}
	if cfg.NatsURL != "nats://bus:4222" {
		t.Fatalf("overlay should apply nats url")
	}
	if !cfg.SeedNotes {
		t.Fatalf("seeding default should survive an unset overlay field")
	}
}

func TestLoadOverlayFileEmpty(t *testing.T) {
	path := writeOverlay(t, "")
	overlay, err := LoadOverlayFile(path)
	if err != nil {
		t.Fatalf("empty file should load: %v", err)
	}
	cfg := defaults()
	overlay.applyTo(cfg)
	if cfg.HTTPAddr != defaultHTTPAddr {
		t.Fatalf("empty overlay must not change defaults")
	}
}

func TestLoadOverlayFileRejectsUnknownKeys(t *testing.T) {
	path := writeOverlay(t, "http_adress: \":8080\"\n")
	if _, err := LoadOverlayFile(path); err == nil {
		t.Fatalf("expected schema error for unknown key")
	} else if !strings.Contains(err.Error(), "config file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadOverlayFileRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad backend", "backend: postgres\n"},
		{"bad duration", "lock_ttl: soon\n"},
		{"negative duration", "reap_interval: -10s\n"},
		{"wrong type", "seed_notes: \"yes\"\n"},
		{"not yaml", "{{{\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeOverlay(t, tc.body)
			if _, err := LoadOverlayFile(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
