package deadletter

import "github.com/lattice-systems/txoutbox"

const defaultTable = "outbox_dead_letters"

// Option configures a Repository.
type Option func(*Repository)

// WithTable overrides the dead-letter table name. Defaults to
// "outbox_dead_letters".
func WithTable(table string) Option {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// WithClock overrides the clock used to stamp CreatedAt when the caller
// leaves it zero. Defaults to txoutbox.SystemClock.
func WithClock(clock txoutbox.Clock) Option {
	return func(r *Repository) {
		if clock != nil {
			r.clock = clock
		}
	}
}
