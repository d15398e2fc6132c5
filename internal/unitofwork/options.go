package unitofwork

import (
	"time"

	"github.com/lattice-systems/txoutbox"
)

const (
	defaultRetryCount = 3
	defaultBaseDelay  = time.Second
)

// Config controls retry behavior and the dependencies the unit of work uses.
type Config struct {
	RetryCount int
	BaseDelay  time.Duration
	Clock      txoutbox.Clock
	Logger     txoutbox.Logger
}

func (c Config) withDefaults() Config {
	if c.RetryCount <= 0 {
		c.RetryCount = defaultRetryCount
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.Clock == nil {
		c.Clock = txoutbox.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = txoutbox.NopLogger{}
	}

	return c
}

// Option configures a UnitOfWork.
type Option func(*Config)

// WithRetryCount sets how many times Save retries a transient fault.
func WithRetryCount(count int) Option {
	return func(c *Config) {
		c.RetryCount = count
	}
}

// WithBaseDelay sets the base of the exponential retry backoff: the n-th
// retry waits base * 2^(n-1).
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.BaseDelay = delay
	}
}

// WithClock sets the clock used for retry backoff, overridable in tests.
func WithClock(clock txoutbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger used to report rollback and retry failures.
func WithLogger(logger txoutbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
