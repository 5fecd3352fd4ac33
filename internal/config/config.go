// Package config defines all configuration for the order-book
// aggregation service. Config is loaded from a YAML file (default:
// configs/config.yaml) with fields overridable via AGG_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Exchanges  ExchangesConfig  `mapstructure:"exchanges"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
}

// ServerConfig controls the gRPC BookSummary endpoint (spec.md §6).
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// AggregatorConfig tunes the per-pair Aggregator state machine
// (spec.md §4.3, §5).
type AggregatorConfig struct {
	Depth           int `mapstructure:"depth"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	MinSources      int `mapstructure:"min_sources"`
	DiagLogInterval int `mapstructure:"diag_log_interval"`

	// ReceiveTolerance is reserved per spec.md §9 Open Question (b): a
	// future extension may drop a book whose paired counterpart arrived
	// longer ago than this. Parsed but not enforced by the Aggregator.
	ReceiveTolerance time.Duration `mapstructure:"receive_tolerance"`
}

// ExchangesConfig toggles which Exchange Adapters the service's catalog
// includes.
type ExchangesConfig struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Bitstamp BitstampConfig `mapstructure:"bitstamp"`
}

// BinanceConfig enables/disables the Binance adapter and its optional
// REST snapshot bootstrap.
type BinanceConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	SnapshotBootstrap bool `mapstructure:"snapshot_bootstrap"`
}

// BitstampConfig enables/disables the Bitstamp adapter.
type BitstampConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig controls the slog.Logger main() constructs at startup.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus exposition endpoint, served by
// the dashboard's HTTP mux.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DashboardConfig controls the ambient human-observability HTTP+WebSocket
// surface (internal/dashboard). It is pure addition: the gRPC
// BookSummary RPC does not depend on it.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with AGG_* environment variable
// overrides: an env prefix, a nested-key replacer so "aggregator.depth"
// maps to AGG_AGGREGATOR_DEPTH, and AutomaticEnv so any key can be
// overridden without an explicit BindEnv call.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AGG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if port := os.Getenv("AGG_SERVER_PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("parse AGG_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = parsed
	}
	if level := os.Getenv("AGG_LOGGING_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Aggregator.Depth <= 0 {
		return fmt.Errorf("aggregator.depth must be > 0")
	}
	if c.Aggregator.MaxAttempts <= 0 {
		return fmt.Errorf("aggregator.max_attempts must be > 0")
	}
	if c.Aggregator.MinSources <= 0 {
		return fmt.Errorf("aggregator.min_sources must be > 0")
	}
	if !c.Exchanges.Binance.Enabled && !c.Exchanges.Bitstamp.Enabled {
		return fmt.Errorf("at least one exchange adapter must be enabled")
	}
	if c.Dashboard.Enabled && c.Dashboard.Port <= 0 {
		return fmt.Errorf("dashboard.port is required when dashboard.enabled is true")
	}
	return nil
}
