// Package enqueue implements the command-handling coordinator (C4): it
// validates an incoming command, mutates the sample order/customer domain,
// and inserts the resulting domain events into the outbox, all inside one
// unit of work.
package enqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lattice-systems/txoutbox"
	"github.com/lattice-systems/txoutbox/internal/domain"
	"github.com/lattice-systems/txoutbox/internal/domainevent"
	"github.com/lattice-systems/txoutbox/internal/unitofwork"
	"github.com/lattice-systems/txoutbox/postgres"
)

var validate = validator.New()

type pendingEvent struct {
	aggregateType string
	aggregateID   string
	event         any
}

// Coordinator implements the begin -> mutate -> encode -> insert -> save ->
// commit protocol for the sample order/customer domain.
type Coordinator struct {
	db       *sql.DB
	store    *postgres.Store
	registry *domainevent.Registry
	clock    txoutbox.Clock
	logger   txoutbox.Logger
	idgen    txoutbox.IDGenerator
	uowOpts  []unitofwork.Option

	table          string
	idempotentEmit bool
}

// New constructs a Coordinator. db must be opened against the pgx stdlib
// driver; store and registry are the concrete C2 and C3 adapters this
// coordinator writes through.
func New(db *sql.DB, store *postgres.Store, registry *domainevent.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:       db,
		store:    store,
		registry: registry,
		clock:    txoutbox.SystemClock{},
		logger:   txoutbox.NopLogger{},
		table:    "outbox",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.idgen == nil {
		c.idgen = txoutbox.NewUUIDv7Generator(c.clock)
	}

	return c
}

// Execute runs the full begin/mutate/encode/insert/save/commit protocol for
// cmd. Only DomainRuleError and FatalDBError are ever returned; any other
// internal failure is logged and wrapped as FatalDBError.
func (c *Coordinator) Execute(ctx context.Context, cmd any) (Result, error) {
	if err := validate.Struct(cmd); err != nil {
		return Result{}, &DomainRuleError{Err: err}
	}

	uow, err := unitofwork.New(c.db, c.uowOpts...)
	if err != nil {
		return Result{}, &FatalDBError{Err: err}
	}

	if err := uow.Begin(ctx); err != nil {
		return Result{}, &FatalDBError{Err: err}
	}
	defer uow.Rollback()

	events, err := c.apply(ctx, uow, cmd)
	if err != nil {
		var domainErr *DomainRuleError
		if errors.As(err, &domainErr) {
			return Result{}, err
		}

		c.logger.Error("enqueue: apply failed", "err", err)

		return Result{}, &FatalDBError{Err: err}
	}

	ids, err := c.emitEvents(ctx, uow, events)
	if err != nil {
		c.logger.Error("enqueue: emit events failed", "err", err)

		return Result{}, &FatalDBError{Err: err}
	}

	if err := uow.Save(ctx); err != nil {
		return Result{}, &FatalDBError{Err: err}
	}
	if err := uow.Commit(ctx); err != nil {
		return Result{}, &FatalDBError{Err: err}
	}

	return Result{EventIDs: ids, CompletedAt: c.clock.Now()}, nil
}

func (c *Coordinator) apply(ctx context.Context, uow *unitofwork.UnitOfWork, cmd any) ([]pendingEvent, error) {
	switch cmd := cmd.(type) {
	case PlaceOrder:
		return c.applyPlaceOrder(ctx, uow, cmd)
	case CancelOrder:
		return c.applyCancelOrder(ctx, uow, cmd)
	case RegisterCustomer:
		return c.applyRegisterCustomer(ctx, uow, cmd)
	case RecordPayment:
		return c.applyRecordPayment(ctx, uow, cmd)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCommand, cmd)
	}
}

func (c *Coordinator) applyPlaceOrder(ctx context.Context, uow *unitofwork.UnitOfWork, cmd PlaceOrder) ([]pendingEvent, error) {
	if _, err := domain.GetCustomer(ctx, uow.Tx(), cmd.CustomerID); err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return nil, &DomainRuleError{Err: err}
		}

		return nil, err
	}

	now := c.clock.Now()
	order := domain.Order{
		ID:         cmd.OrderID,
		CustomerID: cmd.CustomerID,
		Status:     domain.OrderPending,
		TotalCents: cmd.TotalCents,
		CreatedAt:  now,
	}
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		return domain.InsertOrder(ctx, tx, order)
	})

	event := &domain.OrderPlaced{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		TotalCents: order.TotalCents,
		PlacedAt:   now,
	}

	return []pendingEvent{{aggregateType: "order", aggregateID: order.ID.String(), event: event}}, nil
}

func (c *Coordinator) applyCancelOrder(ctx context.Context, uow *unitofwork.UnitOfWork, cmd CancelOrder) ([]pendingEvent, error) {
	order, err := domain.GetOrderForUpdate(ctx, uow.Tx(), cmd.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, &DomainRuleError{Err: err}
		}

		return nil, err
	}

	if err := order.Cancel(); err != nil {
		return nil, &DomainRuleError{Err: err}
	}

	now := c.clock.Now()
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		return domain.UpdateOrder(ctx, tx, order)
	})

	event := &domain.OrderCanceled{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		CanceledAt: now,
		Reason:     cmd.Reason,
	}

	return []pendingEvent{{aggregateType: "order", aggregateID: order.ID.String(), event: event}}, nil
}

func (c *Coordinator) applyRegisterCustomer(ctx context.Context, uow *unitofwork.UnitOfWork, cmd RegisterCustomer) ([]pendingEvent, error) {
	now := c.clock.Now()
	customer := domain.Customer{ID: cmd.CustomerID, Email: cmd.Email, CreatedAt: now}
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		return domain.InsertCustomer(ctx, tx, customer)
	})

	event := &domain.CustomerRegistered{
		CustomerID:   customer.ID,
		Email:        customer.Email,
		RegisteredAt: now,
	}

	return []pendingEvent{{aggregateType: "customer", aggregateID: customer.ID.String(), event: event}}, nil
}

func (c *Coordinator) applyRecordPayment(ctx context.Context, uow *unitofwork.UnitOfWork, cmd RecordPayment) ([]pendingEvent, error) {
	order, err := domain.GetOrderForUpdate(ctx, uow.Tx(), cmd.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, &DomainRuleError{Err: err}
		}

		return nil, err
	}

	if err := order.RecordPayment(cmd.AmountCents); err != nil {
		return nil, &DomainRuleError{Err: err}
	}

	now := c.clock.Now()
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		return domain.UpdateOrder(ctx, tx, order)
	})

	event := &domain.PaymentRecorded{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		AmountCents: cmd.AmountCents,
		RecordedAt:  now,
	}

	return []pendingEvent{{aggregateType: "order", aggregateID: order.ID.String(), event: event}}, nil
}

func (c *Coordinator) emitEvents(ctx context.Context, uow *unitofwork.UnitOfWork, events []pendingEvent) ([]txoutbox.ID, error) {
	ids := make([]txoutbox.ID, 0, len(events))
	for _, pending := range events {
		id, err := c.emitOne(ctx, uow, pending)
		if err != nil {
			return nil, err
		}
		if !id.IsZero() {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (c *Coordinator) emitOne(ctx context.Context, uow *unitofwork.UnitOfWork, pending pendingEvent) (txoutbox.ID, error) {
	if c.idempotentEmit {
		exists, err := c.eventExists(ctx, uow.Tx(), pending)
		if err != nil {
			return txoutbox.ID{}, err
		}
		if exists {
			return txoutbox.ID{}, nil
		}
	}

	typeTag, payload, err := c.registry.Encode(pending.event)
	if err != nil {
		return txoutbox.ID{}, fmt.Errorf("enqueue: encode event failed: %w", err)
	}

	id, err := c.idgen.New()
	if err != nil {
		return txoutbox.ID{}, fmt.Errorf("enqueue: generate id failed: %w", err)
	}

	entry := txoutbox.Entry{
		ID:            id,
		AggregateType: pending.aggregateType,
		AggregateID:   pending.aggregateID,
		EventType:     typeTag,
		Payload:       payload,
	}

	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := c.store.Enqueue(ctx, tx, entry)

		return err
	})

	return id, nil
}

// eventExists backs EmitIfNotExists semantics: it reports whether an
// outbox record in any status already exists for this aggregate/event type,
// letting a command handler that may be retried at an outer boundary (e.g.
// an HTTP retry) avoid emitting a duplicate event for the same logical
// command.
func (c *Coordinator) eventExists(ctx context.Context, tx *sql.Tx, pending pendingEvent) (bool, error) {
	typeTag, _, err := c.registry.Encode(pending.event)
	if err != nil {
		return false, fmt.Errorf("enqueue: encode event failed: %w", err)
	}

	// Existence is checked regardless of status: a record already marked
	// processed or quarantined still means this event was already emitted once.
	query := fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s WHERE aggregate_type = $1 AND aggregate_id = $2 AND event_type = $3)",
		c.table,
	)

	var exists bool
	if err := tx.QueryRowContext(ctx, query, pending.aggregateType, pending.aggregateID, typeTag).Scan(&exists); err != nil {
		return false, fmt.Errorf("enqueue: check existing event failed: %w", err)
	}

	return exists, nil
}
