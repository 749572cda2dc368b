// Package config handles global notcli configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvToken is the environment variable overriding the configured API token.
const EnvToken = "NOTCLI_TOKEN"

// Config represents the global notcli configuration.
type Config struct {
	// Token is the upstream API token. The NOTCLI_TOKEN environment
	// variable takes precedence.
	Token string `toml:"token"`

	// APIBaseURL overrides the upstream endpoint (useful for testing).
	APIBaseURL string `toml:"api_base_url"`

	// APIVersion pins the upstream API version header.
	APIVersion string `toml:"api_version"`

	// StateDir holds the idempotency database, schema cache, and audit
	// log. Defaults to a notcli directory under the user state dir.
	StateDir string `toml:"state_dir"`

	// DefaultDataSource is used when a command omits --data-source.
	DefaultDataSource string `toml:"default_data_source"`

	// RateLimitMs is the minimum interval between upstream calls in
	// milliseconds. Zero uses the built-in service limit.
	RateLimitMs int `toml:"rate_limit_ms"`

	// MaxAttempts caps upstream retries per call.
	MaxAttempts int `toml:"max_attempts"`

	// SchemaTTLHours bounds schema cache staleness. Zero means 24h.
	SchemaTTLHours int `toml:"schema_ttl_hours"`

	// Audit controls the local audit log.
	Audit AuditConfig `toml:"audit"`
}

// AuditConfig controls the append-only audit log.
type AuditConfig struct {
	Enabled bool `toml:"enabled"`
}

// ResolveToken returns the API token, preferring the environment.
func (c *Config) ResolveToken() string {
	if token := os.Getenv(EnvToken); token != "" {
		return token
	}
	return c.Token
}

// ResolveStateDir returns the state directory, with a default under the
// user config dir when unset.
func (c *Config) ResolveStateDir() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "notcli", "state")
	}
	return filepath.Join(".", ".notcli-state")
}

// SchemaTTL returns the schema cache TTL as a duration.
func (c *Config) SchemaTTL() time.Duration {
	if c.SchemaTTLHours > 0 {
		return time.Duration(c.SchemaTTLHours) * time.Hour
	}
	return 24 * time.Hour
}

// RateLimitInterval returns the configured minimum inter-call interval,
// or zero to use the transport default.
func (c *Config) RateLimitInterval() time.Duration {
	if c.RateLimitMs > 0 {
		return time.Duration(c.RateLimitMs) * time.Millisecond
	}
	return 0
}

// Load loads the configuration from the default location.
// Returns a default config if the file doesn't exist.
func Load() (*Config, error) {
	configPath := DefaultPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &Config{Audit: AuditConfig{Enabled: true}}, nil
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	config := Config{Audit: AuditConfig{Enabled: true}}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &config, nil
}

// DefaultPath returns the default config file path.
// Checks ~/.config/notcli/config.toml first (XDG style),
// then falls back to the OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "notcli", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "notcli", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// CreateDefault creates a default config file if it doesn't exist.
func CreateDefault() (string, error) {
	configPath := DefaultPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil // Already exists
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := `# notcli configuration

# API token for the upstream service. The NOTCLI_TOKEN environment
# variable takes precedence over this value.
# token = "secret_..."

# Data source used when a command omits --data-source.
# default_data_source = "..."

# Directory for local state (idempotency records, schema cache, audit log).
# Defaults to the notcli directory under your user config dir.
# state_dir = "/path/to/state"

# Minimum interval between upstream calls, in milliseconds.
# rate_limit_ms = 334

# Retry ceiling per upstream call.
# max_attempts = 5

# How long cached data source schemas stay valid, in hours.
# schema_ttl_hours = 24

[audit]
enabled = true
`

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}
