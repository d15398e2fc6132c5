package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lattice-systems/txoutbox"
)

const (
	defaultPartitionLookaheadDay   = 30 * 24 * time.Hour
	defaultPartitionLookaheadMonth = 90 * 24 * time.Hour
	defaultPartitionCheckEvery     = time.Hour
	defaultPartitionLockPrefix     = "outbox:partitions:"
)

// PartitionPeriod defines the range partition granularity.
type PartitionPeriod int

const (
	// PartitionDay maintains daily partitions.
	PartitionDay PartitionPeriod = iota + 1
	// PartitionMonth maintains monthly partitions.
	PartitionMonth
)

// PartitionMaintainerConfig controls partition creation and cleanup.
type PartitionMaintainerConfig struct {
	// Table is the outbox table name. Use schema.table for non-default schema.
	Table string
	// Period controls partition granularity (day or month).
	Period PartitionPeriod
	// Lookahead defines how far ahead to create partitions.
	Lookahead time.Duration
	// CheckEvery is the interval between partition checks.
	CheckEvery time.Duration
	// LockName is the advisory lock name. Defaults to outbox:partitions:<table>.
	LockName string
	// Retention drops partitions older than now-retention (0 disables dropping).
	Retention time.Duration
	// Clock overrides time source (useful for tests).
	Clock txoutbox.Clock
	// Logger receives warnings about maintenance failures.
	Logger txoutbox.Logger
}

// PartitionMaintainer keeps range partitions ahead of time and trims old ones.
type PartitionMaintainer struct {
	db  *sql.DB
	cfg PartitionMaintainerConfig
}

// NewPartitionMaintainer creates a new maintainer with defaults applied.
//
// Example usage:
//
//	maintainer, err := postgres.NewPartitionMaintainer(db, postgres.PartitionMaintainerConfig{
//		Table:      "outbox",
//		Period:     postgres.PartitionDay,
//		Lookahead:  30 * 24 * time.Hour,
//		CheckEvery: time.Hour,
//		Retention:  7 * 24 * time.Hour,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	go func() {
//		_ = maintainer.Run(ctx)
//	}()
func NewPartitionMaintainer(db *sql.DB, cfg PartitionMaintainerConfig) (*PartitionMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	cfg.Table = table
	if cfg.Period != PartitionDay && cfg.Period != PartitionMonth {
		return nil, ErrPartitionPeriodRequired
	}
	if cfg.Clock == nil {
		cfg.Clock = txoutbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = txoutbox.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultPartitionCheckEvery
	}
	if cfg.Lookahead <= 0 {
		switch cfg.Period {
		case PartitionDay:
			cfg.Lookahead = defaultPartitionLookaheadDay
		case PartitionMonth:
			cfg.Lookahead = defaultPartitionLookaheadMonth
		}
	}
	if cfg.LockName == "" {
		cfg.LockName = defaultPartitionLockPrefix + cfg.Table
	}
	if cfg.Retention < 0 {
		return nil, ErrPartitionRetentionInvalid
	}

	return &PartitionMaintainer{db: db, cfg: cfg}, nil
}

// Run periodically ensures partitions until the context is canceled.
func (m *PartitionMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox partitions ensure failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox partitions ensure failed", "err", err)
			}
		}
	}
}

// Ensure creates missing partitions ahead of time and optionally drops old ones.
//
// The tail partition (pmax) is kept open-ended (FOR VALUES FROM (x) TO
// (MAXVALUE)) and is maintained empty by always extending the lookahead
// window before rows could land past the last day/month partition. That
// invariant is what makes it safe to drop and recreate pmax when adding
// new partitions: it never holds data.
func (m *PartitionMaintainer) Ensure(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("outbox postgres: partition conn failed: %w", err)
	}
	defer conn.Close()

	key := advisoryLockKey(m.cfg.LockName)
	locked, err := tryAdvisoryLock(ctx, conn, key)
	if err != nil {
		return err
	}
	if !locked {
		m.cfg.Logger.Debug("outbox partitions lock held by another session")

		return nil
	}
	defer releaseAdvisoryLock(ctx, conn, key, m.cfg.Logger)

	info, err := loadPartitions(ctx, conn, m.cfg.Table)
	if err != nil {
		return err
	}

	plan, err := planPartitionChanges(m.cfg, info)
	if err != nil {
		return err
	}
	if len(plan.add) == 0 && len(plan.drop) == 0 {
		return nil
	}

	if len(plan.add) > 0 {
		if err := m.extendTail(ctx, conn, info.maxName, info.maxUpper, plan.add); err != nil {
			return err
		}
	}
	if len(plan.drop) > 0 {
		if err := m.dropPartitions(ctx, conn, plan.drop); err != nil {
			return err
		}
	}

	return nil
}

type partitionInfo struct {
	maxName  string
	maxUpper int64
	bounds   map[int64]string
	names    map[string]int64
}

type partitionDef struct {
	name       string
	upperBound int64
}

type partitionPlan struct {
	add  []partitionDef
	drop []string
}

func (m *PartitionMaintainer) extendTail(ctx context.Context, conn *sql.Conn, maxName string, maxUpper int64, add []partitionDef) error {
	m.cfg.Logger.Info(
		"outbox partitions extend",
		"table",
		m.cfg.Table,
		"pmax",
		maxName,
		"add",
		partitionDefNames(add),
	)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("outbox postgres: partition tx begin failed: %w", err)
	}

	// #nosec G201 -- table and partition names are sanitized/generated.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", maxName)); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("outbox postgres: drop tail partition failed: %w", err)
	}

	lower := maxUpper
	for _, part := range add {
		stmt := fmt.Sprintf(
			"CREATE TABLE %s PARTITION OF %s FOR VALUES FROM (%d) TO (%d)",
			part.name, m.cfg.Table, lower, part.upperBound,
		)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("outbox postgres: create partition failed: %w", err)
		}
		lower = part.upperBound
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE %s PARTITION OF %s FOR VALUES FROM (%d) TO (MAXVALUE)",
		maxName, m.cfg.Table, lower,
	)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("outbox postgres: recreate tail partition failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("outbox postgres: partition tx commit failed: %w", err)
	}

	return nil
}

func (m *PartitionMaintainer) dropPartitions(ctx context.Context, conn *sql.Conn, names []string) error {
	if len(names) == 0 {
		return nil
	}
	m.cfg.Logger.Info(
		"outbox partitions drop",
		"table",
		m.cfg.Table,
		"partitions",
		names,
	)
	for _, name := range names {
		// #nosec G201 -- partition names are sanitized/generated.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
			return fmt.Errorf("outbox postgres: drop partition failed: %w", err)
		}
	}

	return nil
}

var partitionBoundPattern = regexp.MustCompile(`(?i)FOR VALUES FROM\s*\(\s*'?([^'\)]+)'?\s*\)\s*TO\s*\(\s*'?([^'\)]+)'?\s*\)`)

func loadPartitions(ctx context.Context, conn *sql.Conn, table string) (partitionInfo, error) {
	rows, err := conn.QueryContext(ctx, `
SELECT c.relname, pg_get_expr(c.relpartbound, c.oid)
FROM pg_inherits i
JOIN pg_class c ON c.oid = i.inhrelid
JOIN pg_class p ON p.oid = i.inhparent
WHERE p.oid = $1::regclass
`, table)
	if err != nil {
		return partitionInfo{}, fmt.Errorf("outbox postgres: list partitions failed: %w", err)
	}
	defer rows.Close()

	info := partitionInfo{
		bounds: make(map[int64]string),
		names:  make(map[string]int64),
	}
	for rows.Next() {
		var (
			name  string
			bound sql.NullString
		)
		if err := rows.Scan(&name, &bound); err != nil {
			return partitionInfo{}, fmt.Errorf("outbox postgres: scan partitions failed: %w", err)
		}
		if !bound.Valid || bound.String == "" {
			return partitionInfo{}, ErrPartitionDescriptionInvalid
		}

		lower, upper, isMax, err := parsePartitionBound(bound.String)
		if err != nil {
			return partitionInfo{}, err
		}
		if isMax {
			if info.maxName != "" {
				return partitionInfo{}, ErrPartitionMaxRequired
			}
			info.maxName = name
			info.maxUpper = lower

			continue
		}

		info.bounds[upper] = name
		info.names[name] = upper
	}
	if err := rows.Err(); err != nil {
		return partitionInfo{}, fmt.Errorf("outbox postgres: list partitions failed: %w", err)
	}
	if len(info.bounds) == 0 && info.maxName == "" {
		return partitionInfo{}, ErrPartitionedTableRequired
	}
	if info.maxName == "" {
		return partitionInfo{}, ErrPartitionMaxRequired
	}

	return info, nil
}

// parsePartitionBound parses a bound string of the form "FOR VALUES FROM
// (lower) TO (upper)" as produced by pg_get_expr. isMax reports whether
// the upper bound is the MAXVALUE sentinel, in which case lower is the
// tail partition's starting point and upper is unused.
func parsePartitionBound(desc string) (lower, upper int64, isMax bool, err error) {
	m := partitionBoundPattern.FindStringSubmatch(desc)
	if m == nil {
		return 0, 0, false, fmt.Errorf("%w: %s", ErrPartitionDescriptionInvalid, desc)
	}

	lowerStr, upperStr := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	lower, err = strconv.ParseInt(lowerStr, 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %s", ErrPartitionDescriptionInvalid, desc)
	}

	if strings.EqualFold(upperStr, "MAXVALUE") {
		return lower, 0, true, nil
	}

	upper, err = strconv.ParseInt(upperStr, 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %s", ErrPartitionDescriptionInvalid, desc)
	}

	return lower, upper, false, nil
}

func planPartitionChanges(cfg PartitionMaintainerConfig, info partitionInfo) (partitionPlan, error) {
	now := cfg.Clock.Now().UTC()
	start := periodStart(now, cfg.Period)
	end := now.Add(cfg.Lookahead)

	add := make([]partitionDef, 0)
	names := make(map[string]struct{}, len(info.names))
	for name := range info.names {
		names[name] = struct{}{}
	}

	for {
		next := nextPeriod(start, cfg.Period)
		upper := next.Unix()
		if upper > info.maxUpper {
			if _, exists := info.bounds[upper]; !exists {
				name := partitionName(cfg.Period, start)
				if _, clash := names[name]; clash {
					return partitionPlan{}, fmt.Errorf("%w: %s", ErrPartitionNameConflict, name)
				}
				names[name] = struct{}{}
				add = append(add, partitionDef{name: name, upperBound: upper})
			}
		}
		if !next.Before(end) {
			break
		}
		start = next
	}

	drop := make([]string, 0)
	if cfg.Retention > 0 {
		cutoff := now.Add(-cfg.Retention).Unix()
		for upper, name := range info.bounds {
			if upper <= cutoff {
				drop = append(drop, name)
			}
		}
		sort.Strings(drop)
	}

	sort.Slice(add, func(i, j int) bool {
		return add[i].upperBound < add[j].upperBound
	})

	return partitionPlan{add: add, drop: drop}, nil
}

func periodStart(t time.Time, period PartitionPeriod) time.Time {
	t = t.UTC()
	switch period {
	case PartitionDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PartitionMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

func nextPeriod(t time.Time, period PartitionPeriod) time.Time {
	switch period {
	case PartitionDay:
		return t.AddDate(0, 0, 1)
	case PartitionMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t
	}
}

func partitionName(period PartitionPeriod, start time.Time) string {
	switch period {
	case PartitionMonth:
		return fmt.Sprintf("p%04d%02d", start.Year(), int(start.Month()))
	default:
		return fmt.Sprintf("p%04d%02d%02d", start.Year(), int(start.Month()), start.Day())
	}
}

func partitionDefNames(defs []partitionDef) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.name)
	}

	return names
}
