package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InsertOrder writes a new order row inside tx.
func InsertOrder(ctx context.Context, tx *sql.Tx, order Order) error {
	_, err := tx.ExecContext(
		ctx,
		"INSERT INTO orders (id, customer_id, status, total_cents, paid_cents) VALUES ($1, $2, $3, $4, $5)",
		order.ID, order.CustomerID, order.Status, order.TotalCents, order.PaidCents,
	)
	if err != nil {
		return fmt.Errorf("domain: insert order failed: %w", err)
	}

	return nil
}

// GetOrderForUpdate loads an order and locks its row for the duration of tx,
// so a concurrent command against the same order serializes behind this one.
func GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Order, error) {
	var order Order
	row := tx.QueryRowContext(
		ctx,
		"SELECT id, customer_id, status, total_cents, paid_cents, created_at FROM orders WHERE id = $1 FOR UPDATE",
		id,
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &order.Status, &order.TotalCents, &order.PaidCents, &order.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}

		return Order{}, fmt.Errorf("domain: load order failed: %w", err)
	}

	return order, nil
}

// UpdateOrder persists the mutable fields of order inside tx.
func UpdateOrder(ctx context.Context, tx *sql.Tx, order Order) error {
	_, err := tx.ExecContext(
		ctx,
		"UPDATE orders SET status = $1, paid_cents = $2 WHERE id = $3",
		order.Status, order.PaidCents, order.ID,
	)
	if err != nil {
		return fmt.Errorf("domain: update order failed: %w", err)
	}

	return nil
}
