package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	JoinWindow    time.Duration `yaml:"join_window"`
	GameClock     time.Duration `yaml:"game_clock"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	ClockTick     time.Duration `yaml:"clock_tick"`
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment overrides and defaults. DATABASE_URL is required.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":8082",
		JoinWindow:    time.Hour,
		GameClock:     10 * time.Minute,
		SweepInterval: 30 * time.Second,
		ClockTick:     time.Second,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}

	if v := strings.TrimSpace(os.Getenv("JOIN_WINDOW_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.JoinWindow = time.Duration(n) * time.Minute
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_CLOCK_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GameClock = time.Duration(n) * time.Minute
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLOCK_TICK_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClockTick = time.Duration(n) * time.Millisecond
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}
