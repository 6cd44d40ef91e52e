package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voxhub/voxd/internal/engine"
	"github.com/voxhub/voxd/internal/logger"
)

// Config is the top-level TOML structure for the voxd daemon.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     logger.Config `mapstructure:"log"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// EngineConfig configures the supervised speech engine.
type EngineConfig struct {
	BasePath    string `mapstructure:"base_path"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Voice       string `mapstructure:"voice"`
	AutoRestart bool   `mapstructure:"auto_restart"`
}

// ServerConfig configures the loopback control API.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type HistoryConfig struct {
	// DSN selects the sink backend: sqlite path, postgres:// or clickhouse://.
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Listen, when set, exposes Prometheus metrics on its own address.
	Listen         string        `mapstructure:"listen"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			BasePath:    defaultBasePath(),
			Host:        engine.DefaultHost,
			Port:        engine.DefaultPort,
			Voice:       engine.DefaultVoice,
			AutoRestart: true,
		},
		Server: ServerConfig{
			Listen:   "127.0.0.1:8900",
			BasePath: "/api",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			SampleInterval: 10 * time.Second,
		},
	}
}

// Load reads a TOML config file and applies defaults for anything unset.
// An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Engine.BasePath = ExpandHome(cfg.Engine.BasePath)
	if cfg.Engine.BasePath == "" {
		cfg.Engine.BasePath = defaultBasePath()
	}
	if cfg.Engine.Host == "" {
		cfg.Engine.Host = engine.DefaultHost
	}
	if cfg.Engine.Port == 0 {
		cfg.Engine.Port = engine.DefaultPort
	}
	if strings.TrimSpace(cfg.Engine.Voice) == "" {
		cfg.Engine.Voice = engine.DefaultVoice
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:8900"
	}
	return cfg, nil
}

// Launch converts the engine section into the supervisor's launch config.
func (c EngineConfig) Launch() engine.LaunchConfig {
	return engine.LaunchConfig{
		Host:        c.Host,
		Port:        c.Port,
		Voice:       c.Voice,
		AutoRestart: c.AutoRestart,
	}
}

// ExpandHome resolves a leading "~/" against the current user's home.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}

func defaultBasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voxd"
	}
	return filepath.Join(home, ".voxd")
}
