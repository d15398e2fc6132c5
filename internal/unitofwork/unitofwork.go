// Package unitofwork implements the begin/mutate/save/commit protocol that
// the enqueue coordinator uses to keep a domain write and its outbox
// insert in one Postgres transaction.
package unitofwork

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// Mutation is a single buffered write, executed against the active
// transaction when Save is called. Repositories enqueue closures instead of
// executing immediately, which is what lets Save retry a transient fault by
// replaying every mutation inside a fresh SAVEPOINT.
type Mutation func(ctx context.Context, tx *sql.Tx) error

// UnitOfWork coordinates one Postgres transaction across repository writes
// and the outbox insert, retrying transient faults without poisoning the
// outer transaction.
type UnitOfWork struct {
	db  *sql.DB
	cfg Config

	tx        *sql.Tx
	mutations []Mutation

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a UnitOfWork bound to db, which must be opened against the
// pgx stdlib driver so transient-fault classification can unwrap
// *pgconn.PgError.
func New(db *sql.DB, opts ...Option) (*UnitOfWork, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &UnitOfWork{
		db:    db,
		cfg:   cfg,
		sleep: defaultSleep,
	}, nil
}

// Begin starts a new transaction at READ COMMITTED.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return ErrAlreadyActive
	}

	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("unitofwork: begin failed: %w", err)
	}

	u.tx = tx
	u.mutations = nil

	return nil
}

// Tx exposes the active transaction so repositories can issue statements
// against it directly. It returns nil if no transaction is active.
func (u *UnitOfWork) Tx() *sql.Tx {
	return u.tx
}

// Enqueue buffers a mutation to run when Save is called.
func (u *UnitOfWork) Enqueue(m Mutation) {
	u.mutations = append(u.mutations, m)
}

// Save flushes every buffered mutation against the active transaction. Each
// attempt runs inside SAVEPOINT outbox_uow so a transient failure can be
// rolled back to the savepoint and retried without discarding the
// transaction itself.
func (u *UnitOfWork) Save(ctx context.Context) error {
	if u.tx == nil {
		return ErrNotActive
	}

	var lastErr error
	for attempt := 0; attempt <= u.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			delay := backoff(u.cfg.BaseDelay, attempt)
			u.cfg.Logger.Warn("unitofwork: retrying save after transient fault", "attempt", attempt, "delay", delay, "err", lastErr)
			if err := u.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := u.saveAttempt(ctx)
		if err == nil {
			return nil
		}
		if !isTransientFault(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("unitofwork: save failed after %d attempts: %w", u.cfg.RetryCount+1, lastErr)
}

func (u *UnitOfWork) saveAttempt(ctx context.Context) error {
	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT outbox_uow"); err != nil {
		return fmt.Errorf("unitofwork: savepoint failed: %w", err)
	}

	for _, mutation := range u.mutations {
		if err := mutation(ctx, u.tx); err != nil {
			if _, rbErr := u.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT outbox_uow"); rbErr != nil {
				u.cfg.Logger.Error("unitofwork: rollback to savepoint failed", "err", rbErr)
			}

			return err
		}
	}

	if _, err := u.tx.ExecContext(ctx, "RELEASE SAVEPOINT outbox_uow"); err != nil {
		return fmt.Errorf("unitofwork: release savepoint failed: %w", err)
	}

	return nil
}

// Commit commits the active transaction and clears it, regardless of outcome.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return ErrNotActive
	}

	tx := u.tx
	u.tx = nil
	u.mutations = nil

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("unitofwork: commit failed: %w", err)
	}

	return nil
}

// Rollback best-effort rolls back the active transaction. Failures are
// logged, never returned, matching the outbox engine's "rollback never
// fails the caller" contract.
func (u *UnitOfWork) Rollback() {
	if u.tx == nil {
		return
	}

	tx := u.tx
	u.tx = nil
	u.mutations = nil

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		u.cfg.Logger.Error("unitofwork: rollback failed", "err", err)
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
