package scheduler

import "time"

// Config controls scheduler intervals and per-job limits.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	SweepGrace  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 5 * time.Minute,
		JobTimeout:  time.Minute,
		SweepGrace:  24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.SweepGrace <= 0 {
		c.SweepGrace = defaults.SweepGrace
	}
	return c
}
