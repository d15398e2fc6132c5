package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InsertCustomer writes a new customer row inside tx.
func InsertCustomer(ctx context.Context, tx *sql.Tx, customer Customer) error {
	_, err := tx.ExecContext(
		ctx,
		"INSERT INTO customers (id, email) VALUES ($1, $2)",
		customer.ID, customer.Email,
	)
	if err != nil {
		return fmt.Errorf("domain: insert customer failed: %w", err)
	}

	return nil
}

// GetCustomer loads a customer by id inside tx.
func GetCustomer(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Customer, error) {
	var customer Customer
	row := tx.QueryRowContext(ctx, "SELECT id, email, created_at FROM customers WHERE id = $1", id)
	if err := row.Scan(&customer.ID, &customer.Email, &customer.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}

		return Customer{}, fmt.Errorf("domain: load customer failed: %w", err)
	}

	return customer, nil
}
