package broker

import (
	"context"

	"github.com/lattice-systems/txoutbox"
)

// LoggingPublisher logs every Message instead of sending it anywhere. It
// exists for local development and tests, where wiring a real GCP project
// is either unavailable or undesirable; it must never be selected for a
// production relay.
type LoggingPublisher struct {
	logger txoutbox.Logger
}

// NewLoggingPublisher constructs a LoggingPublisher.
func NewLoggingPublisher(logger txoutbox.Logger) *LoggingPublisher {
	if logger == nil {
		logger = txoutbox.NopLogger{}
	}

	return &LoggingPublisher{logger: logger}
}

// Publish logs msg and always succeeds.
func (p *LoggingPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("broker: publish (logging only)",
		"id", msg.ID.String(),
		"type_tag", msg.TypeTag,
		"destination", msg.Destination,
		"bytes", len(msg.Body),
	)

	return nil
}

var _ Publisher = (*LoggingPublisher)(nil)
