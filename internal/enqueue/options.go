package enqueue

import (
	"github.com/lattice-systems/txoutbox"
	"github.com/lattice-systems/txoutbox/internal/unitofwork"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the coordinator's clock. Defaults to txoutbox.SystemClock.
func WithClock(clock txoutbox.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithLogger overrides the coordinator's logger. Defaults to txoutbox.NopLogger.
func WithLogger(logger txoutbox.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithIDGenerator overrides how outbox record ids are generated.
func WithIDGenerator(gen txoutbox.IDGenerator) Option {
	return func(c *Coordinator) {
		c.idgen = gen
	}
}

// WithTable overrides the outbox table name used by the idempotent emit
// existence check. Defaults to "outbox".
func WithTable(table string) Option {
	return func(c *Coordinator) {
		if table != "" {
			c.table = table
		}
	}
}

// WithIdempotentEmit enables the EmitIfNotExists check: before inserting an
// outbox record, the coordinator checks whether a record in any status
// already exists for the same aggregate and event type, and skips the insert
// if so.
func WithIdempotentEmit(enabled bool) Option {
	return func(c *Coordinator) {
		c.idempotentEmit = enabled
	}
}

// WithUnitOfWorkOptions passes through options to every unit of work the
// coordinator constructs (retry count, base delay, clock, logger).
func WithUnitOfWorkOptions(opts ...unitofwork.Option) Option {
	return func(c *Coordinator) {
		c.uowOpts = append(c.uowOpts, opts...)
	}
}
