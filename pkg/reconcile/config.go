package reconcile

import (
	"fmt"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/confidence"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/matching"
)

// Config is everything a reconciliation run is tuned by. It is passed to the
// engine at construction, so concurrent engines may run different settings.
type Config struct {
	Thresholds confidence.Thresholds
	Matching   matching.Config

	// Workers bounds how many record groups are reconciled at once
	Workers int
	// MaxRetries bounds retries after a concurrent write
	MaxRetries           uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// LockWait bounds how long a record waits for its entity locks
	LockWait time.Duration

	// SingleNames are known competitors who go by one name
	SingleNames []string
}

func DefaultConfig() Config {
	return Config{
		Thresholds:           confidence.DefaultThresholds(),
		Matching:             matching.DefaultConfig(),
		Workers:              4,
		MaxRetries:           3,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
		LockWait:             5 * time.Second,
	}
}

func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.RetryInitialInterval <= 0 {
		return fmt.Errorf("retry initial interval must be positive")
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf("retry max interval %s is below initial interval %s", c.RetryMaxInterval, c.RetryInitialInterval)
	}
	if c.LockWait <= 0 {
		return fmt.Errorf("lock wait must be positive")
	}
	return nil
}
