package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rcourtman/podsmon/internal/logging"
)

const (
	DefaultRefreshInterval = 5 * time.Second
	DefaultListenAddr      = "127.0.0.1:9393"

	minRefreshInterval = 500 * time.Millisecond
)

// Config holds the runtime settings for podsmon.
type Config struct {
	EngineHost      string // empty means DOCKER_HOST or the SDK default socket
	RefreshInterval time.Duration
	ListenAddr      string
	LogLevel        string
	LogFormat       string
	Strict          bool // panic on collection contract violations
	WatchEvents     bool
	AllowedOrigins  []string // websocket origins; empty allows same-host only
}

// Load reads configuration from PODSMON_* environment variables.
// A .env file is loaded if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	refresh, err := envOrDefaultDuration("PODSMON_REFRESH_INTERVAL", DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}
	strict, err := envOrDefaultBool("PODSMON_STRICT", false)
	if err != nil {
		return nil, err
	}
	watch, err := envOrDefaultBool("PODSMON_WATCH_EVENTS", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EngineHost:      strings.TrimSpace(os.Getenv("PODSMON_ENGINE_HOST")),
		RefreshInterval: refresh,
		ListenAddr:      envOrDefault("PODSMON_LISTEN_ADDR", DefaultListenAddr),
		LogLevel:        envOrDefault("PODSMON_LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("PODSMON_LOG_FORMAT", "auto"),
		Strict:          strict,
		WatchEvents:     watch,
		AllowedOrigins:  splitList(os.Getenv("PODSMON_ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings. Flags may change a loaded Config, so callers
// re-run it after applying overrides.
func (c *Config) Validate() error {
	if c.RefreshInterval < minRefreshInterval {
		return fmt.Errorf("PODSMON_REFRESH_INTERVAL must be at least %s, got %s", minRefreshInterval, c.RefreshInterval)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("PODSMON_LISTEN_ADDR must be host:port: %w", err)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("PODSMON_LOG_LEVEL %q is not a known level", c.LogLevel)
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("PODSMON_LOG_FORMAT must be json, console or auto, got %q", c.LogFormat)
	}
	if c.EngineHost != "" && !strings.Contains(c.EngineHost, "://") {
		return fmt.Errorf("PODSMON_ENGINE_HOST must include a scheme such as unix:// or tcp://, got %q", c.EngineHost)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}

// envOrDefaultDuration accepts Go durations ("10s") or bare seconds ("10").
func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
