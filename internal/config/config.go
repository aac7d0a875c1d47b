package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

// Config holds all warmth engine configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Warmth   WarmthConfig   `toml:"warmth"`
	Sweep    SweepConfig    `toml:"sweep"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type WarmthConfig struct {
	DefaultMode string `toml:"default_mode"`
	// Per-channel boost weights used when an event names a channel instead
	// of an explicit weight. Weight policy belongs to the caller; these are
	// the fallbacks.
	Weights map[string]float64 `toml:"weights"`
}

type SweepConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression
	PageSize int    `toml:"page_size"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38150,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Warmth: WarmthConfig{
			DefaultMode: string(warmth.ModeMedium),
			Weights:     warmth.DefaultWeights(),
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "0 4 * * *", // daily, 4am
			PageSize: 100,
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if !warmth.ValidMode(warmth.Mode(cfg.Warmth.DefaultMode)) {
		return cfg, fmt.Errorf("invalid default_mode %q", cfg.Warmth.DefaultMode)
	}
	if cfg.Warmth.Weights == nil {
		cfg.Warmth.Weights = warmth.DefaultWeights()
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
