// Package config loads the server's configuration: file +
// environment + flag layering via viper, the way a production Go
// service in this corpus does it (SPEC_FULL.md §3). The core engine
// itself never sees this struct — it only ever receives the opaque
// directory blob described by kv.Config (spec.md §4.3); this layer
// exists purely for the process wrapped around the core.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the ustorekv server process's configuration surface.
type Config struct {
	DataDir        string        `mapstructure:"data_dir"`
	SocketPath     string        `mapstructure:"socket_path"`
	MaxConnections int           `mapstructure:"max_connections"`
	LogLevel       string        `mapstructure:"log_level"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the optional Prometheus HTTP exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the configuration a freshly installed server starts
// with, mirroring the teacher's DefaultConfig shape but trimmed to the
// fields this server actually consumes.
func Default() *Config {
	return &Config{
		DataDir:        "./data",
		SocketPath:     "/tmp/ustorekv.sock",
		MaxConnections: 256,
		LogLevel:       "info",
		ShutdownGrace:  5 * time.Second,
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load builds a Config by layering, in increasing priority: built-in
// defaults, an optional config file (path may be empty, in which case
// only the working directory and $HOME/.ustorekv are searched), and
// USTOREKV_-prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("USTOREKV")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("socket_path", def.SocketPath)
	v.SetDefault("max_connections", def.MaxConnections)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("shutdown_grace", def.ShutdownGrace)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.addr", def.Metrics.Addr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ustorekv")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ustorekv")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("loading config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}
