// Package deadletter records terminal outbox failures to a narrower table
// that operators can page through without scanning every quarantined row
// in the outbox table itself, grounded on the DLQ repository the retrieved
// services layer their own outbox implementations on top of.
package deadletter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-systems/txoutbox"
)

// DeadLetter is a quarantined outbox record kept for operator triage.
type DeadLetter struct {
	ID            uuid.UUID
	RecordID      txoutbox.ID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Reason        string
	AttemptCount  int
	CreatedAt     time.Time
}
