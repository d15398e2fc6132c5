package enqueue

import (
	"time"

	"github.com/google/uuid"

	"github.com/lattice-systems/txoutbox"
)

// PlaceOrder creates a new order for an existing customer.
type PlaceOrder struct {
	OrderID    uuid.UUID `validate:"required"`
	CustomerID uuid.UUID `validate:"required"`
	TotalCents int64     `validate:"gt=0"`
}

// CancelOrder cancels a pending order.
type CancelOrder struct {
	OrderID uuid.UUID `validate:"required"`
	Reason  string    `validate:"omitempty,max=500"`
}

// RegisterCustomer creates a new customer.
type RegisterCustomer struct {
	CustomerID uuid.UUID `validate:"required"`
	Email      string    `validate:"required,email"`
}

// RecordPayment applies a payment to a pending order.
type RecordPayment struct {
	OrderID     uuid.UUID `validate:"required"`
	AmountCents int64     `validate:"gt=0"`
}

// Result summarizes the outcome of a successful Execute call.
type Result struct {
	// EventIDs are the outbox ids assigned to the events the command emitted.
	EventIDs []txoutbox.ID
	// CompletedAt is when the transaction committed.
	CompletedAt time.Time
}
