// Package broker publishes relayed outbox events to a message broker. It
// collapses what used to be several duplicated publisher adapters into one
// interface and one concrete Pub/Sub implementation, with a logging
// fallback for local development.
package broker

import (
	"context"

	"github.com/lattice-systems/txoutbox"
)

// Message is what a Publisher sends downstream, built by the relay's
// handler from a decoded domain event.
type Message struct {
	// ID is the outbox record's own id, used as the broker message id so
	// duplicate relay attempts land on the same broker-side message id.
	ID txoutbox.ID
	// TypeTag is the full type tag the event was registered under (e.g.
	// "order.placed"), carried as an attribute for downstream filtering.
	TypeTag string
	// Destination optionally names the topic/queue to publish to. When
	// empty, the Publisher derives one from TypeTag.
	Destination string
	// ContentType describes Body's encoding, e.g. "application/json".
	ContentType string
	Body        []byte
}

// Publisher sends a Message to a broker and reports whether it can be
// retried by the relay.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
