package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the sample aggregate backing RegisterCustomer commands.
type Customer struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}
