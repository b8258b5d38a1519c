package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/schema"
)

// Overlay mirrors the optional YAML configuration file. Durations are
// strings in Go syntax ("90s", "2m"). Unset fields leave the defaults
// untouched.
type Overlay struct {
	HTTPAddr     string `yaml:"http_addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
	RedisURL     string `yaml:"redis_url"`
	NatsURL      string `yaml:"nats_url"`
	Backend      string `yaml:"backend"`
	LockTTL      string `yaml:"lock_ttl"`
	ReapInterval string `yaml:"reap_interval"`
	SeedNotes    *bool  `yaml:"seed_notes"`
}

// LoadOverlayFile reads and validates a YAML overlay. The file is checked
// against the embedded JSON schema before decoding, so typos in keys fail
// fast instead of being silently ignored.
func LoadOverlayFile(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseOverlay(data)
}

func parseOverlay(data []byte) (*Overlay, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if doc == nil {
		return &Overlay{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config file: %w", err)
	}
	if err := schema.ValidateSchema("config", overlaySchema, json.RawMessage(raw)); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	if err := overlay.checkDurations(); err != nil {
		return nil, err
	}
	return &overlay, nil
}

func (o *Overlay) checkDurations() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"lock_ttl", o.LockTTL},
		{"reap_interval", o.ReapInterval},
	} {
		raw := strings.TrimSpace(field.value)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config file: %s: %w", field.name, err)
		}
		if d < 0 {
			return fmt.Errorf("config file: %s must not be negative", field.name)
		}
	}
	return nil
}

func (o *Overlay) applyTo(c *Config) {
	if v := strings.TrimSpace(o.HTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	if v := strings.TrimSpace(o.MetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	if v := strings.TrimSpace(o.RedisURL); v != "" {
		c.RedisURL = v
	}
	if v := strings.TrimSpace(o.NatsURL); v != "" {
		c.NatsURL = v
	}
	if v := strings.TrimSpace(o.Backend); v != "" {
		c.Backend = normalizeBackend(v)
	}
	if d, err := time.ParseDuration(strings.TrimSpace(o.LockTTL)); err == nil && o.LockTTL != "" {
		c.LockTTL = d
	}
	if d, err := time.ParseDuration(strings.TrimSpace(o.ReapInterval)); err == nil && o.ReapInterval != "" {
		c.ReapInterval = d
	}
	if o.SeedNotes != nil {
		c.SeedNotes = *o.SeedNotes
	}
}
