package txoutbox

import (
	"context"
	"database/sql"
	"time"
)

// FetchOptions controls how pending records are selected.
type FetchOptions struct {
	BatchSize    int
	MinCreatedAt time.Time
}

// Consumer provides locked batches of outbox records.
type Consumer interface {
	// Fetch returns a batch of pending records locked for processing.
	Fetch(ctx context.Context, opts FetchOptions) (Batch, error)
}

// Batch represents a locked set of records fetched for processing.
type Batch interface {
	// Records returns the fetched records in this batch.
	Records() []Record
	// Ack marks the provided records as processed.
	Ack(ctx context.Context, ids []ID) error
	// Fail records failures and updates retry state for each record.
	Fail(ctx context.Context, failures []Failure) error
	// Commit finalizes the batch transaction.
	Commit() error
	// Rollback releases locks without applying any changes.
	Rollback() error
}

// QuarantineBatch supports moving records straight to StatusQuarantined,
// bypassing the normal retry counter for failures the classifier has
// already judged permanent (e.g. an unknown type tag or a malformed
// payload). Records that exhaust their attempts are quarantined by Fail.
type QuarantineBatch interface {
	// Quarantine marks the provided records as permanent failures.
	Quarantine(ctx context.Context, failures []Failure) error
}

// TxProvider is implemented by batches that expose their underlying
// transaction, letting a Consumer decorator chain additional writes into
// the same commit as the batch itself (e.g. quarantine-table recording).
type TxProvider interface {
	Tx() *sql.Tx
}

// PendingCounter provides a total count of pending records.
type PendingCounter interface {
	// PendingCount returns the current number of pending records.
	PendingCount(ctx context.Context) (int, error)
}
