// Package config loads application configuration from a YAML file with
// environment overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server Server `yaml:"server"`
	Auth   Auth   `yaml:"auth"`
	Broker Broker `yaml:"broker"`
	Policy Policy `yaml:"policy"`
	Store  Store  `yaml:"store"`
	Log    Log    `yaml:"log"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Auth holds token signing settings.
type Auth struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Broker holds session and order submission settings.
type Broker struct {
	Account       string        `yaml:"account"`
	Screen        string        `yaml:"screen"`
	BridgeTimeout time.Duration `yaml:"bridge_timeout"`

	// Simulated session tuning.
	SimMinLatency time.Duration `yaml:"sim_min_latency"`
	SimMaxLatency time.Duration `yaml:"sim_max_latency"`
	SimRejectRate float64       `yaml:"sim_reject_rate"`
}

// Policy holds the auto-policy tick settings.
type Policy struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Store holds history persistence settings.
type Store struct {
	HistoryDir string `yaml:"history_dir"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            "8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: Auth{
			Secret:   "kiwoom-trader-secret",
			TokenTTL: time.Hour,
		},
		Broker: Broker{
			Screen:        "2000",
			BridgeTimeout: 10 * time.Second,
			SimMinLatency: 10 * time.Millisecond,
			SimMaxLatency: 50 * time.Millisecond,
		},
		Policy: Policy{
			TickInterval: time.Second,
		},
		Store: Store{
			HistoryDir: "data/history",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.loadEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("BROKER_ACCOUNT"); v != "" {
		c.Broker.Account = v
	}
	if v := os.Getenv("HISTORY_DIR"); v != "" {
		c.Store.HistoryDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		c.Log.Level = "debug"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Broker.BridgeTimeout <= 0 {
		return fmt.Errorf("broker.bridge_timeout must be positive")
	}
	if c.Broker.SimMaxLatency < c.Broker.SimMinLatency {
		return fmt.Errorf("broker.sim_max_latency must not be below sim_min_latency")
	}
	if c.Store.HistoryDir == "" {
		return fmt.Errorf("store.history_dir is required")
	}
	return nil
}
