package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime tuning read from TCPFWD_* environment variables.
// Defaults match the plain four-argument invocation.
type Config struct {
	DialTimeout      time.Duration `env:"DIAL_TIMEOUT" envDefault:"30s"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	BufferSize       int           `env:"BUFFER_SIZE" envDefault:"4096"`
	HalfCloseTimeout time.Duration `env:"HALF_CLOSE_TIMEOUT" envDefault:"5s"`
	DrainTimeout     time.Duration `env:"DRAIN_TIMEOUT" envDefault:"5s"`
	Debug            bool          `env:"DEBUG" envDefault:"false"`
	MetricsAddr      string        `env:"METRICS_ADDR"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	StatsTTL         time.Duration `env:"STATS_TTL" envDefault:"60s"`
	AcceptRate       int           `env:"ACCEPT_RATE" envDefault:"0"`
	AcceptBurst      int           `env:"ACCEPT_BURST" envDefault:"10"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TCPFWD_"}); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	switch {
	case cfg.DialTimeout <= 0:
		return Config{}, fmt.Errorf("TCPFWD_DIAL_TIMEOUT must be positive, got %s", cfg.DialTimeout)
	case cfg.PollInterval <= 0:
		return Config{}, fmt.Errorf("TCPFWD_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	case cfg.BufferSize <= 0:
		return Config{}, fmt.Errorf("TCPFWD_BUFFER_SIZE must be positive, got %d", cfg.BufferSize)
	case cfg.StatsTTL <= 0:
		return Config{}, fmt.Errorf("TCPFWD_STATS_TTL must be positive, got %s", cfg.StatsTTL)
	case cfg.HalfCloseTimeout < 0, cfg.DrainTimeout < 0:
		return Config{}, fmt.Errorf("timeouts must not be negative")
	}
	return cfg, nil
}
