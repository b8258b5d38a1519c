package config

import (
	"os"
	"strings"
	"time"
)

const (
	defaultHTTPAddr     = ":8080"
	defaultMetricsAddr  = ":9091"
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultBackend      = BackendRedis
	defaultLockTTL      = 120 * time.Second
	defaultReapInterval = 30 * time.Second

	envHTTPAddr     = "NOTELOCK_HTTP_ADDR"
	envMetricsAddr  = "NOTELOCK_METRICS_ADDR"
	envRedisURL     = "REDIS_URL"
	envNatsURL      = "NATS_URL"
	envBackend      = "NOTELOCK_BACKEND"
	envLockTTL      = "NOTELOCK_LOCK_TTL"
	envReapInterval = "NOTELOCK_REAP_INTERVAL"
	envSeedNotes    = "NOTELOCK_SEED_NOTES"
	envConfigFile   = "NOTELOCK_CONFIG"
)

// Backend selects the store implementation.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds runtime configuration for the note lock service.
type Config struct {
	HTTPAddr     string
	MetricsAddr  string
	RedisURL     string
	NatsURL      string // empty disables the NATS event publisher
	Backend      string
	LockTTL      time.Duration
	ReapInterval time.Duration // zero disables the reaper
	SeedNotes    bool
}

// Load returns configuration from environment variables with sane defaults.
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadWithOverlay layers an optional YAML file between the defaults and the
// environment: defaults < file < env. The file path comes from
// NOTELOCK_CONFIG; an empty path means env-only.
func LoadWithOverlay() (*Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		overlay, err := LoadOverlayFile(path)
		if err != nil {
			return nil, err
		}
		overlay.applyTo(cfg)
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTPAddr:     defaultHTTPAddr,
		MetricsAddr:  defaultMetricsAddr,
		RedisURL:     defaultRedisURL,
		NatsURL:      "",
		Backend:      defaultBackend,
		LockTTL:      defaultLockTTL,
		ReapInterval: defaultReapInterval,
		SeedNotes:    true,
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envHTTPAddr)); v != "" {
		c.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(envMetricsAddr)); v != "" {
		c.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(envRedisURL)); v != "" {
		c.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envNatsURL)); v != "" {
		c.NatsURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envBackend)); v != "" {
		c.Backend = normalizeBackend(v)
	}
	if d, ok := durationEnv(envLockTTL); ok {
		c.LockTTL = d
	}
	if d, ok := durationEnv(envReapInterval); ok {
		c.ReapInterval = d
	}
	if v := os.Getenv(envSeedNotes); v != "" {
		c.SeedNotes = parseBool(v)
	}
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BackendMemory:
		return BackendMemory
	default:
		return BackendRedis
	}
}

func durationEnv(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
