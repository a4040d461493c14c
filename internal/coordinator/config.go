package coordinator

import (
	"time"
)

// Config controls refresh scheduling and bulk-operation pacing.
type Config struct {
	ScanInterval time.Duration
	CycleTimeout time.Duration
	BulkDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ScanInterval: 5 * time.Minute,
		CycleTimeout: 2 * time.Minute,
		BulkDelay:    100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ScanInterval <= 0 {
		c.ScanInterval = defaults.ScanInterval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = defaults.CycleTimeout
	}
	if c.BulkDelay < 0 {
		c.BulkDelay = defaults.BulkDelay
	}
	return c
}
