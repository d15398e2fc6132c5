package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/lattice-systems/txoutbox"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "outbox:cleanup:"
)

// CleanupOptions defines how to delete processed/quarantined records in non-partitioned tables.
type CleanupOptions struct {
	// Before removes rows older than this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
	// IncludeQuarantined removes rows with status=quarantined, using
	// updated_at for the cutoff, since quarantined rows have no
	// processed_at (processed rows are cut off by processed_at).
	IncludeQuarantined bool
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Processed   int64
	Quarantined int64
}

// CleanupMaintainerConfig controls periodic cleanup of non-partitioned tables.
type CleanupMaintainerConfig struct {
	// Table is the outbox table name. Use schema.table for non-default schema.
	Table string
	// Retention removes rows older than now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludeQuarantined removes quarantined rows in addition to processed rows.
	IncludeQuarantined bool
	// LockName is the advisory lock name. Defaults to outbox:cleanup:<table>.
	LockName string
	// Clock overrides time source (useful for tests).
	Clock txoutbox.Clock
	// Logger receives warnings about cleanup failures.
	Logger txoutbox.Logger
}

// CleanupMaintainer runs periodic cleanup for non-partitioned tables.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// Cleanup removes processed rows (and optionally quarantined rows) older than opts.Before.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	remaining := limit
	processed, err := s.cleanupByStatus(ctx, txoutbox.StatusProcessed, "processed_at", opts.Before, remaining)
	if err != nil {
		return CleanupResult{}, err
	}
	remaining -= int(processed)

	var quarantined int64
	if opts.IncludeQuarantined && remaining > 0 {
		quarantined, err = s.cleanupByStatus(ctx, txoutbox.StatusQuarantined, "updated_at", opts.Before, remaining)
		if err != nil {
			return CleanupResult{}, err
		}
	}

	return CleanupResult{Processed: processed, Quarantined: quarantined}, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = txoutbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = txoutbox.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table), WithValidateJSON(false))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old processed/quarantined rows until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("outbox postgres: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	key := advisoryLockKey(m.cfg.LockName)
	locked, err := tryAdvisoryLock(ctx, conn, key)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("outbox cleanup lock held by another session")

		return CleanupResult{}, nil
	}
	defer releaseAdvisoryLock(ctx, conn, key, m.cfg.Logger)

	before := m.cfg.Clock.Now().Add(-m.cfg.Retention)

	return m.store.Cleanup(ctx, CleanupOptions{
		Before:             before,
		Limit:              m.cfg.Limit,
		IncludeQuarantined: m.cfg.IncludeQuarantined,
	})
}

func (s *Store) cleanupByStatus(ctx context.Context, status txoutbox.Status, tsColumn string, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	// #nosec G201 -- table and column names are internal and sanitized.
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE status = $1 AND %s IS NOT NULL AND %s <= $2 ORDER BY id LIMIT $3)",
		s.table,
		s.table,
		tsColumn,
		tsColumn,
	)
	res, err := s.db.ExecContext(ctx, query, status, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: cleanup rows failed: %w", err)
	}

	return affected, nil
}

// advisoryLockKey hashes a named lock into the 64-bit signed key space
// pg_advisory_lock expects, since Postgres locks are keyed by bigint
// rather than by name.
func advisoryLockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))

	return int64(h.Sum64())
}

func tryAdvisoryLock(ctx context.Context, conn *sql.Conn, key int64) (bool, error) {
	var got bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&got); err != nil {
		return false, fmt.Errorf("outbox postgres: acquire advisory lock failed: %w", err)
	}

	return got, nil
}

func releaseAdvisoryLock(ctx context.Context, conn *sql.Conn, key int64, logger txoutbox.Logger) {
	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&released); err != nil {
		logger.Warn("outbox advisory unlock failed", "err", err)
	}
}
