package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lattice-systems/txoutbox"
)

const maxReasonLen = 1024

// ErrNotFound is returned when a lookup finds no matching dead letter.
var ErrNotFound = errors.New("deadletter: not found")

// execer is satisfied by both *sql.DB and *sql.Tx, letting Insert and
// InsertTx share one statement.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository persists DeadLetter rows.
type Repository struct {
	db    *sql.DB
	table string
	clock txoutbox.Clock
}

// NewRepository constructs a Repository. db must be opened against the pgx
// stdlib driver.
func NewRepository(db *sql.DB, opts ...Option) *Repository {
	r := &Repository{
		db:    db,
		table: defaultTable,
		clock: txoutbox.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Insert writes dl using its own connection, outside of any caller
// transaction. Prefer InsertTx when a transaction is available, so the
// dead-letter row commits atomically with the dead-lettering itself.
func (r *Repository) Insert(ctx context.Context, dl DeadLetter) error {
	return r.insert(ctx, r.db, dl)
}

// InsertTx writes dl against tx.
func (r *Repository) InsertTx(ctx context.Context, tx *sql.Tx, dl DeadLetter) error {
	return r.insert(ctx, tx, dl)
}

func (r *Repository) insert(ctx context.Context, exec execer, dl DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = r.clock.Now()
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, record_id, aggregate_type, aggregate_id, event_type, payload, reason, attempt_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.table,
	)

	_, err := exec.ExecContext(
		ctx, query,
		dl.ID, dl.RecordID, dl.AggregateType, dl.AggregateID, dl.EventType,
		dl.Payload, truncateReason(dl.Reason), dl.AttemptCount, dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("deadletter: insert failed: %w", err)
	}

	return nil
}

// FindByRecordID loads the dead letter recorded for the given outbox record
// id, if any.
func (r *Repository) FindByRecordID(ctx context.Context, recordID txoutbox.ID) (DeadLetter, error) {
	query := fmt.Sprintf(
		`SELECT id, record_id, aggregate_type, aggregate_id, event_type, payload, reason, attempt_count, created_at
		 FROM %s WHERE record_id = $1`,
		r.table,
	)

	var dl DeadLetter
	row := r.db.QueryRowContext(ctx, query, recordID)
	if err := row.Scan(&dl.ID, &dl.RecordID, &dl.AggregateType, &dl.AggregateID, &dl.EventType, &dl.Payload, &dl.Reason, &dl.AttemptCount, &dl.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DeadLetter{}, ErrNotFound
		}

		return DeadLetter{}, fmt.Errorf("deadletter: find by record id failed: %w", err)
	}

	return dl, nil
}

// List returns up to limit dead letters, most recent first.
func (r *Repository) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	query := fmt.Sprintf(
		`SELECT id, record_id, aggregate_type, aggregate_id, event_type, payload, reason, attempt_count, created_at
		 FROM %s ORDER BY created_at DESC LIMIT $1`,
		r.table,
	)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("deadletter: list failed: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.RecordID, &dl.AggregateType, &dl.AggregateID, &dl.EventType, &dl.Payload, &dl.Reason, &dl.AttemptCount, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("deadletter: scan row failed: %w", err)
		}

		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deadletter: iterate rows failed: %w", err)
	}

	return out, nil
}

func truncateReason(s string) string {
	if len(s) <= maxReasonLen {
		return s
	}

	return s[:maxReasonLen]
}
