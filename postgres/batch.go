package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lattice-systems/txoutbox"
)

type batch struct {
	tx      *sql.Tx
	store   *Store
	records []txoutbox.Record
}

var (
	_ txoutbox.Batch           = (*batch)(nil)
	_ txoutbox.QuarantineBatch = (*batch)(nil)
	_ txoutbox.TxProvider      = (*batch)(nil)
)

// Records returns the records fetched for this batch.
func (b *batch) Records() []txoutbox.Record {
	return b.records
}

// Ack marks the provided records as processed.
func (b *batch) Ack(ctx context.Context, ids []txoutbox.ID) error {
	return b.store.ack(ctx, b.tx, ids)
}

// Fail records failures and updates retry state for each record.
func (b *batch) Fail(ctx context.Context, failures []txoutbox.Failure) error {
	return b.store.fail(ctx, b.tx, failures)
}

// Quarantine marks the provided records as permanent failures.
func (b *batch) Quarantine(ctx context.Context, failures []txoutbox.Failure) error {
	return b.store.quarantine(ctx, b.tx, failures)
}

// Tx exposes the underlying transaction so a txoutbox.TxProvider-aware
// decorator can chain additional writes into the same commit.
func (b *batch) Tx() *sql.Tx {
	return b.tx
}

// Commit finalizes the batch transaction.
func (b *batch) Commit() error {
	return b.tx.Commit()
}

// Rollback releases locks without applying any changes.
func (b *batch) Rollback() error {
	err := b.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}
