// Package config loads room defaults and server settings from a YAML file
// or the environment, the way a configured trading bot loads its market
// maker parameters rather than reading scattered flags.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rishav/marketmaking-sim/internal/risk"
)

// Config is the full set of tunables for a roomd process.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	DefaultMaxPosition     int64   `mapstructure:"default_max_position"`
	DefaultMaxNotionalMajor float64 `mapstructure:"default_max_notional"`
	DefaultMaxOrdersPerSec int     `mapstructure:"default_max_orders_per_sec"`

	TickerIntervalMS int `mapstructure:"ticker_interval_ms"`

	ExportDir string `mapstructure:"export_dir"`
}

// DefaultLimits converts the room-wide defaults into the risk.Limits a newly
// seated user is gated by, so an operator's ROOMD_DEFAULT_MAX_POSITION etc.
// actually reach the gate instead of the package-level constants.
func (c Config) DefaultLimits() risk.Limits {
	return risk.Limits{
		MaxPosition:     c.DefaultMaxPosition,
		MaxNotional:     int64(c.DefaultMaxNotionalMajor * 100),
		MaxOrdersPerSec: c.DefaultMaxOrdersPerSec,
	}
}

// Defaults returns the out-of-the-box configuration, matching the original
// gateway's RiskLimits defaults (max_position=10000, max_notional=$1,000,000,
// max_orders_per_sec=50) and its 20Hz market-data broadcast cadence.
func Defaults() Config {
	return Config{
		ListenAddr:              ":8000",
		MetricsAddr:             ":9090",
		DefaultMaxPosition:      10000,
		DefaultMaxNotionalMajor: 1_000_000.0,
		DefaultMaxOrdersPerSec:  50,
		TickerIntervalMS:        50,
		ExportDir:               "exports",
	}
}

// Load reads configuration from path (if non-empty) and the environment,
// falling back to Defaults() for anything unset. Environment variables use
// the ROOMD_ prefix, e.g. ROOMD_LISTEN_ADDR.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ROOMD")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("default_max_position", cfg.DefaultMaxPosition)
	v.SetDefault("default_max_notional", cfg.DefaultMaxNotionalMajor)
	v.SetDefault("default_max_orders_per_sec", cfg.DefaultMaxOrdersPerSec)
	v.SetDefault("ticker_interval_ms", cfg.TickerIntervalMS)
	v.SetDefault("export_dir", cfg.ExportDir)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
