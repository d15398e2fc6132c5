package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/lattice-systems/txoutbox/internal/domainevent"
)

// OrderPlaced is emitted when a new order is created.
type OrderPlaced struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	TotalCents int64     `json:"total_cents"`
	PlacedAt   time.Time `json:"placed_at"`
}

// OrderCanceled is emitted when an order is canceled before payment.
type OrderCanceled struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	CanceledAt time.Time `json:"canceled_at"`
	Reason     string    `json:"reason,omitempty"`
}

// PaymentRecorded is emitted when a payment is recorded against an order.
type PaymentRecorded struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	AmountCents int64     `json:"amount_cents"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// CustomerRegistered is emitted when a new customer is created.
type CustomerRegistered struct {
	CustomerID   uuid.UUID `json:"customer_id"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RegisterAll registers every sample domain event with registry. Called once
// from cmd/outbox-relay's main before its relay handler is built.
func RegisterAll(registry *domainevent.Registry) {
	registry.Register("order.placed", &OrderPlaced{}, domainevent.JSONCodec(func() any { return &OrderPlaced{} }))
	registry.Register("order.canceled", &OrderCanceled{}, domainevent.JSONCodec(func() any { return &OrderCanceled{} }))
	registry.Register("payment.recorded", &PaymentRecorded{}, domainevent.JSONCodec(func() any { return &PaymentRecorded{} }))
	registry.Register("customer.registered", &CustomerRegistered{}, domainevent.JSONCodec(func() any { return &CustomerRegistered{} }))
}
