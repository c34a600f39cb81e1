package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// PlatformConfig holds connection settings for the platform REST API.
type PlatformConfig struct {
	URL       string `toml:"url"`
	Token     string `toml:"token"`
	Namespace string `toml:"namespace"`
}

// RunnerConfig holds connection settings for the runner REST API. The token
// is a service-account credential scoped to queue-cancel and run-terminate
// operations.
type RunnerConfig struct {
	URL   string `toml:"url"`
	User  string `toml:"user"`
	Token string `toml:"token"`
}

// ResyncConfig controls the periodic NEW-build reconciliation sweep.
type ResyncConfig struct {
	IntervalSeconds int      `toml:"interval_seconds"`
	Jobs            []string `toml:"jobs"`
}

// Config holds all bridge configuration.
type Config struct {
	Listen      string         `toml:"listen"`
	DatabaseURL string         `toml:"database_url"`
	Platform    PlatformConfig `toml:"platform"`
	Runner      RunnerConfig   `toml:"runner"`
	Resync      ResyncConfig   `toml:"resync"`
}

const (
	defaultListen         = ":8081"
	defaultResyncInterval = 5 * time.Minute
)

// ListenOrDefault returns Listen if set, otherwise defaultListen.
func (c Config) ListenOrDefault() string {
	if c.Listen != "" {
		return c.Listen
	}
	return defaultListen
}

// ResyncInterval returns the configured sweep interval, defaulting to five
// minutes.
func (c Config) ResyncInterval() time.Duration {
	if c.Resync.IntervalSeconds > 0 {
		return time.Duration(c.Resync.IntervalSeconds) * time.Second
	}
	return defaultResyncInterval
}

// LoadFrom reads configuration from the given TOML file path. If the file
// does not exist, it returns an empty config without error. Environment
// variables always take precedence over file values:
//   - BRIDGE_PLATFORM_URL / BRIDGE_PLATFORM_TOKEN override [platform]
//   - BRIDGE_RUNNER_URL / BRIDGE_RUNNER_TOKEN override [runner]
//   - DATABASE_URL overrides database_url
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_PLATFORM_URL"); v != "" {
		cfg.Platform.URL = v
	}
	if v := os.Getenv("BRIDGE_PLATFORM_TOKEN"); v != "" {
		cfg.Platform.Token = v
	}
	if v := os.Getenv("BRIDGE_RUNNER_URL"); v != "" {
		cfg.Runner.URL = v
	}
	if v := os.Getenv("BRIDGE_RUNNER_TOKEN"); v != "" {
		cfg.Runner.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}
