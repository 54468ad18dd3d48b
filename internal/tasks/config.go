package tasks

import "time"

// Config tunes the background queue that delivers dev API mail.
type Config struct {
	Workers         int           // Concurrent deliveries (default: 2)
	ReleaseAfter    time.Duration // A claimed task is retried after this long (default: 15m)
	CleanupInterval time.Duration // How often finished tasks are purged (default: 1h)
}

func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ReleaseAfter <= 0 {
		c.ReleaseAfter = d.ReleaseAfter
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}
