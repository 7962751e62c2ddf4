package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/forecast/internal/config"
)

// Config controls the periodic refresh job.
type Config struct {
	// Spec is a standard five-field cron expression. Empty disables the job.
	Spec    string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	c.Spec = strings.TrimSpace(c.Spec)
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Spec) != ""
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Spec:    cfg.RefreshCron,
		Timeout: cfg.RefreshLockTTL,
	}
}
