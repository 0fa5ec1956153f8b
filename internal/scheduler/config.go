package scheduler

import (
	"time"

	"github.com/smallbiznis/revlens/internal/config"
)

// Config controls the periodic sweep across merchants.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	Concurrency int
	RunTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: time.Hour,
		Concurrency: 4,
		RunTimeout:  30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Sync.SweepEnabled,
		RunInterval: cfg.Sync.SweepInterval,
		Concurrency: cfg.Sync.SweepConcurrency,
		RunTimeout:  cfg.Sync.RunTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
