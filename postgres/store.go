package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lattice-systems/txoutbox"
)

const (
	maxErrorLen       = 1024
	ackFixedArgs      = 2
	placeholderGrowth = 4
)

// transientFaultCodes are SQLSTATE classes that indicate the failure is
// environmental (connection loss, serialization conflict, deadlock,
// too many connections) rather than a defect in the query itself.
// IsTransientFault reports this classification; the unit of work retries
// these codes using its own copy of the table, and the relay does not
// consult it.
var transientFaultCodes = map[string]bool{
	"08000": true, // connection_exception
	"08006": true, // connection_failure
	"08003": true, // connection_does_not_exist
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57014": true, // query_canceled
}

// IsTransientFault reports whether err wraps a Postgres error whose
// SQLSTATE indicates a retryable condition.
func IsTransientFault(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientFaultCodes[pgErr.Code]
	}

	return false
}

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements a Postgres-backed outbox using polling + SKIP LOCKED.
//
// Store expects db to be opened against the "pgx" stdlib driver
// (github.com/jackc/pgx/v5/stdlib), which is what lets IsTransientFault
// unwrap to *pgconn.PgError.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ txoutbox.Consumer = (*Store)(nil)
var _ txoutbox.PendingCounter = (*Store)(nil)

// NewStore constructs a Postgres store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a Postgres store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Enqueue inserts an outbox entry using the provided executor (transaction preferred).
func (s *Store) Enqueue(ctx context.Context, exec Executor, entry txoutbox.Entry) (txoutbox.ID, error) {
	if exec == nil {
		return txoutbox.ID{}, ErrExecutorRequired
	}
	if err := txoutbox.ValidateEntryWithOptions(entry, s.cfg.ValidatePayload, s.cfg.ValidateHeaders); err != nil {
		return txoutbox.ID{}, err
	}

	id := entry.ID
	if id.IsZero() {
		var err error
		id, err = s.cfg.Generator.New()
		if err != nil {
			return txoutbox.ID{}, fmt.Errorf("outbox postgres: generate id failed: %w", err)
		}
	}

	headers := any(nil)
	if len(entry.Headers) > 0 {
		headers = entry.Headers
	}

	_, err := exec.ExecContext(
		ctx,
		s.queries.insert,
		id,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Payload,
		headers,
	)
	if err != nil {
		return txoutbox.ID{}, fmt.Errorf("outbox postgres: insert failed: %w", err)
	}

	return id, nil
}

// Fetch locks and returns a batch of pending records using READ COMMITTED + SKIP LOCKED.
func (s *Store) Fetch(ctx context.Context, opts txoutbox.FetchOptions) (txoutbox.Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, txoutbox.ErrInvalidBatchSize
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: begin tx failed: %w", err)
	}

	records, err := s.selectBatch(ctx, tx, opts)
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(err, rollbackErr)
	}
	if len(records) == 0 {
		_ = tx.Rollback()

		return nil, txoutbox.ErrNoRecords
	}

	return &batch{tx: tx, store: s, records: records}, nil
}

func (s *Store) selectBatch(ctx context.Context, tx *sql.Tx, opts txoutbox.FetchOptions) ([]txoutbox.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if opts.MinCreatedAt.IsZero() {
		rows, err = tx.QueryContext(ctx, s.queries.selectPending, txoutbox.StatusPending, opts.BatchSize)
	} else {
		rows, err = tx.QueryContext(ctx, s.queries.selectPendingTS, txoutbox.StatusPending, opts.MinCreatedAt.UTC(), opts.BatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: select failed: %w", err)
	}
	defer rows.Close()

	records := make([]txoutbox.Record, 0, opts.BatchSize)
	for rows.Next() {
		var (
			id        txoutbox.ID
			aggType   string
			aggID     string
			eventType string
			payload   []byte
			headers   []byte
			createdAt time.Time
			attempts  int
			lastError sql.NullString
		)

		if err := rows.Scan(&id, &aggType, &aggID, &eventType, &payload, &headers, &createdAt, &attempts, &lastError); err != nil {
			return nil, fmt.Errorf("outbox postgres: scan failed: %w", err)
		}

		rec := txoutbox.Record{
			ID:            id,
			AggregateType: aggType,
			AggregateID:   aggID,
			EventType:     eventType,
			Payload:       payload,
			Headers:       headers,
			CreatedAt:     createdAt,
			Attempts:      attempts,
		}
		if lastError.Valid {
			rec.LastError = &lastError.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox postgres: rows failed: %w", err)
	}

	return records, nil
}

func (s *Store) ack(ctx context.Context, tx *sql.Tx, ids []txoutbox.ID) error {
	if len(ids) == 0 {
		return nil
	}

	query := buildAckQuery(s.table, len(ids))
	args := make([]any, 0, len(ids)+ackFixedArgs)
	args = append(args, txoutbox.StatusProcessed, s.cfg.Clock.Now())
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("outbox postgres: ack update failed: %w", err)
	}

	return nil
}

func (s *Store) fail(ctx context.Context, tx *sql.Tx, failures []txoutbox.Failure) error {
	if len(failures) == 0 {
		return nil
	}

	for _, failure := range failures {
		errText := truncateError(failure.Err)
		if _, err := tx.ExecContext(
			ctx,
			s.queries.updateFailureOne,
			errText,
			s.cfg.MaxAttempts,
			txoutbox.StatusQuarantined,
			txoutbox.StatusPending,
			failure.ID,
		); err != nil {
			return fmt.Errorf("outbox postgres: fail update failed: %w", err)
		}
	}

	return nil
}

func (s *Store) quarantine(ctx context.Context, tx *sql.Tx, failures []txoutbox.Failure) error {
	if len(failures) == 0 {
		return nil
	}

	for _, failure := range failures {
		errText := truncateError(failure.Err)
		if _, err := tx.ExecContext(
			ctx,
			s.queries.updateQuarantineOne,
			errText,
			txoutbox.StatusQuarantined,
			failure.ID,
		); err != nil {
			return fmt.Errorf("outbox postgres: quarantine update failed: %w", err)
		}
	}

	return nil
}

// PendingCount returns the number of pending outbox rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending, txoutbox.StatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox postgres: pending count failed: %w", err)
	}

	return count, nil
}

func buildAckQuery(table string, count int) string {
	placeholders := makePlaceholders(count)

	return fmt.Sprintf("UPDATE %s SET status = $1, processed_at = $2, last_error = NULL WHERE id IN (%s)", table, placeholders)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, fmt.Sprintf("$%d", i+ackFixedArgs+1)...)
	}

	return string(buf)
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	runes := []rune(msg)
	if len(runes) <= maxErrorLen {
		return msg
	}

	return string(runes[:maxErrorLen])
}
