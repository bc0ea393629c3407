package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Auth configures JWT bearer authentication on the RPC surface.
type Auth struct {
	Enabled          bool   `toml:"Enabled"`
	HMACSecret       string `toml:"HMACSecret"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int64  `toml:"ClockSkewSeconds"`
}

// Telemetry configures the optional OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

type Config struct {
	ListenAddress        string   `toml:"ListenAddress"`
	Environment          string   `toml:"Environment"`
	Currencies           []string `toml:"Currencies"`
	EmergencyWaitSeconds int64    `toml:"EmergencyWaitSeconds"`
	RequestsPerMinute    float64  `toml:"RequestsPerMinute"`
	Burst                int      `toml:"Burst"`

	Auth      Auth      `toml:"Auth"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EmergencyWait returns the configured idle-timeout waiting period.
func (c *Config) EmergencyWait() time.Duration {
	return time.Duration(c.EmergencyWaitSeconds) * time.Second
}

// ClockSkew returns the allowed clock skew for token validation.
func (a Auth) ClockSkew() time.Duration {
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

// Validate checks the loaded configuration for inconsistencies.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if len(c.Currencies) == 0 {
		return fmt.Errorf("config: at least one settlement currency required")
	}
	if c.EmergencyWaitSeconds <= 0 {
		return fmt.Errorf("config: EmergencyWaitSeconds must be positive")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("config: Auth.HMACSecret required when auth is enabled")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7340"
	}
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = []string{"TPC"}
	}
	if cfg.EmergencyWaitSeconds <= 0 {
		cfg.EmergencyWaitSeconds = 3 * 60 * 60
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 600
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	if cfg.Auth.ClockSkewSeconds <= 0 {
		cfg.Auth.ClockSkewSeconds = 120
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create default config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	return cfg, nil
}
