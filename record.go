package txoutbox

import (
	"encoding/json"
	"time"
)

// Record is a stored outbox message fetched for processing.
//
// EventType is the record's type tag: a stable string naming the
// event's schema, opaque to the engine and interpreted only by the
// domain-event serializer. CreatedAt is the occurred-on timestamp that
// defines fetch order.
type Record struct {
	ID            ID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Headers       json.RawMessage
	CreatedAt     time.Time
	Attempts      int
	// LastError carries the reason for the most recent prior failure, if any.
	// It is informational only; handlers must not branch on it.
	LastError *string
}

// Failure captures a processing error for a record.
type Failure struct {
	ID  ID
	Err error
}
