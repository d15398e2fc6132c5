package txoutbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// FailureHandler is called when a record processing returns an error.
type FailureHandler func(ctx context.Context, record Record, err error)

// Relay polls a Consumer and invokes a Handler for each record, one
// processing cycle at a time.
type Relay struct {
	consumer Consumer
	handler  Handler
	cfg      RelayConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

// cycleOutcome accumulates what a single processing cycle decided for each
// record it looked at: acknowledge, retry, or quarantine.
type cycleOutcome struct {
	successful  []ID
	retryable   []Failure
	quarantined []Failure
}

// NewRelay constructs a Relay with defaults and optional settings.
func NewRelay(consumer Consumer, handler Handler, opts ...RelayOption) *Relay {
	if consumer == nil {
		panic("outbox: nil Consumer")
	}
	if handler == nil {
		panic("outbox: nil Handler")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Relay{
		consumer: consumer,
		handler:  handler,
		cfg:      cfg,
	}
}

// Run starts the polling loop with the configured number of workers. Each
// worker runs ticks back to back: a tick performs one processing cycle. A
// tick whose fetch finds no records sleeps for PollInterval before the
// next; a tick that processed a batch is followed by the next one at once,
// without sleeping. Ticks never overlap within a worker, and a tick that
// runs long simply delays the worker's next one.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, r.cfg.Workers)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
					r.cfg.Logger.Error("outbox worker panic", "worker", workerID, "panic", rec)
					errCh <- err
					cancel()
				}
			}()

			if err := r.tickLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.cfg.Logger.Error("outbox worker error", "worker", workerID, "err", err)
				errCh <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// RunCycle runs a single processing cycle: fetch one batch and resolve
// every record in it. It reports whether a batch was available.
func (r *Relay) RunCycle(ctx context.Context) (bool, error) {
	batch, err := r.fetchBatch(ctx)
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			r.maybeRecordPending(ctx)

			return false, nil
		}

		return false, err
	}

	if err := r.processBatch(ctx, batch); err != nil {
		return false, err
	}

	return true, nil
}

// tickLoop runs ticks until ctx is done. A tick that finds nothing to do
// sleeps for PollInterval before trying again; a tick with a top-level
// failure (e.g. the database is unreachable) is logged by the caller and
// stops the worker rather than retrying blindly.
func (r *Relay) tickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := r.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, ErrNoRecords) {
				r.maybeRecordPending(ctx)
				if sleepErr := r.sleep(ctx, r.cfg.PollInterval); sleepErr != nil {
					return sleepErr
				}

				continue
			}

			return err
		}

		if err := r.processBatch(ctx, batch); err != nil {
			return err
		}
	}
}

func (r *Relay) fetchBatch(ctx context.Context) (Batch, error) {
	opts := FetchOptions{BatchSize: r.cfg.BatchSize}
	if r.cfg.PartitionWindow > 0 {
		opts.MinCreatedAt = r.cfg.Clock.Now().Add(-r.cfg.PartitionWindow)
	}

	return r.consumer.Fetch(ctx, opts)
}

func (r *Relay) processBatch(ctx context.Context, batch Batch) error {
	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	if batch == nil {
		return ErrNilBatch
	}

	records := batch.Records()
	if len(records) == 0 {
		rollbackErr := batch.Rollback()

		return errors.Join(ErrEmptyBatch, rollbackErr)
	}

	outcome := r.resolveRecords(ctx, records)

	return r.applyOutcome(ctx, batch, outcome)
}

// resolveRecords walks a batch in fetched order, honoring cooperative
// cancellation between records: once a record's Handle call has started,
// its outcome is always recorded (so the batch never loses an attempt
// counter to a cancellation that arrives mid-publish), but no further
// record in the batch is started afterward.
func (r *Relay) resolveRecords(ctx context.Context, records []Record) cycleOutcome {
	outcome := cycleOutcome{
		successful:  make([]ID, 0, len(records)),
		retryable:   make([]Failure, 0),
		quarantined: make([]Failure, 0),
	}

	for i := range records {
		if i > 0 && ctx.Err() != nil {
			break
		}

		record := records[i]
		handleCtx := ctx
		cancel := func() {}
		if r.cfg.HandlerTimeout > 0 {
			handleCtx, cancel = context.WithTimeout(ctx, r.cfg.HandlerTimeout)
		}
		err := r.handler.Handle(handleCtx, record)
		cancel()

		if err == nil {
			outcome.successful = append(outcome.successful, record.ID)

			continue
		}

		if ctx.Err() != nil {
			// The cycle was cancelled while this record's publish was in
			// flight. Spec'd as a transient failure for the record itself:
			// the classifier is bypassed so a cancellation never quarantines.
			outcome.retryable = append(outcome.retryable, Failure{ID: record.ID, Err: err})

			break
		}

		r.classify(ctx, record, err, &outcome)
	}

	return outcome
}

func (r *Relay) classify(ctx context.Context, record Record, err error, outcome *cycleOutcome) {
	if r.cfg.ErrorHandler != nil {
		r.cfg.ErrorHandler(ctx, record, err)
	}

	if r.cfg.FailureClassifier(ctx, record, err) == FailureQuarantine {
		outcome.quarantined = append(outcome.quarantined, Failure{ID: record.ID, Err: err})

		return
	}
	outcome.retryable = append(outcome.retryable, Failure{ID: record.ID, Err: err})
}

func (r *Relay) applyOutcome(ctx context.Context, batch Batch, outcome cycleOutcome) error {
	if len(outcome.successful) > 0 {
		if err := batch.Ack(ctx, outcome.successful); err != nil {
			return r.rollbackWith(batch, fmt.Errorf("outbox ack failed: %w", err))
		}
	}
	if len(outcome.retryable) > 0 {
		if err := batch.Fail(ctx, outcome.retryable); err != nil {
			return r.rollbackWith(batch, fmt.Errorf("outbox fail update failed: %w", err))
		}
	}
	if len(outcome.quarantined) > 0 {
		if err := r.quarantine(ctx, batch, outcome.quarantined); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		return r.rollbackWith(batch, fmt.Errorf("outbox commit failed: %w", err))
	}

	r.cfg.Metrics.AddProcessed(len(outcome.successful))
	r.cfg.Metrics.AddErrors(len(outcome.retryable) + len(outcome.quarantined))
	r.cfg.Metrics.AddRetries(len(outcome.retryable))
	r.cfg.Metrics.AddQuarantined(len(outcome.quarantined))

	return nil
}

func (r *Relay) quarantine(ctx context.Context, batch Batch, failures []Failure) error {
	quarantineBatch, ok := batch.(QuarantineBatch)
	if ok {
		if err := quarantineBatch.Quarantine(ctx, failures); err != nil {
			return r.rollbackWith(batch, fmt.Errorf("outbox quarantine update failed: %w", err))
		}

		return nil
	}

	r.cfg.Logger.Warn("outbox batch does not support quarantine; falling back to retry", "count", len(failures))
	if err := batch.Fail(ctx, failures); err != nil {
		return r.rollbackWith(batch, fmt.Errorf("outbox quarantine fallback failed: %w", err))
	}

	return nil
}

func (r *Relay) rollbackWith(batch Batch, err error) error {
	rollbackErr := batch.Rollback()
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, fmt.Errorf("outbox rollback failed: %w", rollbackErr))
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
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

func (r *Relay) maybeRecordPending(ctx context.Context) {
	counter, ok := r.consumer.(PendingCounter)
	if !ok {
		return
	}
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := counter.PendingCount(ctx)
	if err != nil {
		r.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}
