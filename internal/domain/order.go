package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	// OrderPending is the initial state of a placed order.
	OrderPending OrderStatus = "pending"
	// OrderPaid indicates a payment has been recorded in full.
	OrderPaid OrderStatus = "paid"
	// OrderCanceledStatus indicates the order was canceled before payment.
	OrderCanceledStatus OrderStatus = "canceled"
)

// Order is the sample aggregate this engine uses to exercise the enqueue
// coordinator; its business rules are deliberately minimal, since
// correctness of this sample domain is out of scope for the outbox engine
// itself.
type Order struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Status     OrderStatus
	TotalCents int64
	PaidCents  int64
	CreatedAt  time.Time
}

// Cancel transitions a pending order to canceled. It enforces the
// no-double-cancel invariant and refuses to cancel a paid order.
func (o *Order) Cancel() error {
	switch o.Status {
	case OrderCanceledStatus:
		return ErrOrderAlreadyCanceled
	case OrderPaid:
		return ErrOrderAlreadyPaid
	}
	o.Status = OrderCanceledStatus

	return nil
}

// RecordPayment applies a payment to a pending order. It enforces
// positive amounts and refuses payments against a canceled order.
func (o *Order) RecordPayment(amountCents int64) error {
	if amountCents <= 0 {
		return ErrNonPositiveAmount
	}
	if o.Status == OrderCanceledStatus {
		return ErrOrderCanceled
	}
	o.PaidCents += amountCents
	if o.PaidCents >= o.TotalCents {
		o.Status = OrderPaid
	}

	return nil
}
