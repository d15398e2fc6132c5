package deadletter

import (
	"context"
	"fmt"

	"github.com/lattice-systems/txoutbox"
)

// Recorder wraps a txoutbox.Consumer so every batch that quarantines
// records also writes a row to the dead-letter table. When the underlying
// batch exposes its transaction via txoutbox.TxProvider, the dead-letter
// inserts commit atomically with the quarantine mark itself.
type Recorder struct {
	consumer txoutbox.Consumer
	repo     *Repository
	logger   txoutbox.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger overrides the recorder's logger. Defaults to
// txoutbox.NopLogger.
func WithRecorderLogger(logger txoutbox.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder wraps consumer with dead-letter recording backed by repo.
func NewRecorder(consumer txoutbox.Consumer, repo *Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{consumer: consumer, repo: repo, logger: txoutbox.NopLogger{}}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Fetch implements txoutbox.Consumer.
func (r *Recorder) Fetch(ctx context.Context, opts txoutbox.FetchOptions) (txoutbox.Batch, error) {
	batch, err := r.consumer.Fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &recordingBatch{inner: batch, recorder: r}, nil
}

// PendingCount forwards to the wrapped consumer when it supports counting
// pending records, so wrapping a Store with dead-letter recording does not
// silently drop the relay's pending-gauge metric.
func (r *Recorder) PendingCount(ctx context.Context) (int, error) {
	counter, ok := r.consumer.(txoutbox.PendingCounter)
	if !ok {
		return 0, fmt.Errorf("deadletter: wrapped consumer does not support pending counts")
	}

	return counter.PendingCount(ctx)
}

var (
	_ txoutbox.Consumer       = (*Recorder)(nil)
	_ txoutbox.PendingCounter = (*Recorder)(nil)
)

type recordingBatch struct {
	inner    txoutbox.Batch
	recorder *Recorder
}

func (b *recordingBatch) Records() []txoutbox.Record { return b.inner.Records() }

func (b *recordingBatch) Ack(ctx context.Context, ids []txoutbox.ID) error {
	return b.inner.Ack(ctx, ids)
}

func (b *recordingBatch) Fail(ctx context.Context, failures []txoutbox.Failure) error {
	return b.inner.Fail(ctx, failures)
}

func (b *recordingBatch) Commit() error { return b.inner.Commit() }

func (b *recordingBatch) Rollback() error { return b.inner.Rollback() }

// Quarantine writes a dead-letter row for each failure before marking the
// underlying records quarantined, so both happen in one commit whenever the
// underlying batch exposes its transaction.
func (b *recordingBatch) Quarantine(ctx context.Context, failures []txoutbox.Failure) error {
	quarantineBatch, ok := b.inner.(txoutbox.QuarantineBatch)
	if !ok {
		return fmt.Errorf("deadletter: underlying batch does not support quarantine")
	}

	letters := buildDeadLetters(failures, b.inner.Records())

	if txp, ok := b.inner.(txoutbox.TxProvider); ok {
		for _, dl := range letters {
			if err := b.recorder.repo.InsertTx(ctx, txp.Tx(), dl); err != nil {
				return err
			}
		}
	} else {
		b.recorder.logger.Warn("deadletter: batch has no transaction to chain into, recording outside the batch commit")
		for _, dl := range letters {
			if err := b.recorder.repo.Insert(ctx, dl); err != nil {
				return err
			}
		}
	}

	return quarantineBatch.Quarantine(ctx, failures)
}

var (
	_ txoutbox.Batch           = (*recordingBatch)(nil)
	_ txoutbox.QuarantineBatch = (*recordingBatch)(nil)
)

func buildDeadLetters(failures []txoutbox.Failure, records []txoutbox.Record) []DeadLetter {
	byID := make(map[txoutbox.ID]txoutbox.Record, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	letters := make([]DeadLetter, 0, len(failures))
	for _, failure := range failures {
		record, ok := byID[failure.ID]
		if !ok {
			continue
		}

		reason := ""
		if failure.Err != nil {
			reason = failure.Err.Error()
		}

		letters = append(letters, DeadLetter{
			RecordID:      record.ID,
			AggregateType: record.AggregateType,
			AggregateID:   record.AggregateID,
			EventType:     record.EventType,
			Payload:       record.Payload,
			Reason:        reason,
			AttemptCount:  record.Attempts,
		})
	}

	return letters
}
