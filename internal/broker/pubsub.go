package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/lattice-systems/txoutbox"
)

// PubSubPublisher publishes Messages to Google Cloud Pub/Sub, caching one
// *pubsub.Publisher per destination topic since constructing one is not
// free and every relay worker publishes to a small, stable set of topics.
type PubSubPublisher struct {
	client       *pubsub.Client
	projectID    string
	defaultTopic string
	logger       txoutbox.Logger
	publishers   sync.Map // destination -> *pubsub.Publisher
}

// PubSubOption configures a PubSubPublisher.
type PubSubOption func(*PubSubPublisher)

// WithPubSubLogger overrides the publisher's logger.
func WithPubSubLogger(logger txoutbox.Logger) PubSubOption {
	return func(p *PubSubPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDefaultTopic sets the topic used when a Message carries no
// Destination. Only when no default topic is set is a destination derived
// from the message's TypeTag.
func WithDefaultTopic(topic string) PubSubOption {
	return func(p *PubSubPublisher) {
		p.defaultTopic = topic
	}
}

// NewPubSubPublisher constructs a PubSubPublisher backed by client, which
// the caller remains responsible for closing.
func NewPubSubPublisher(client *pubsub.Client, projectID string, opts ...PubSubOption) *PubSubPublisher {
	p := &PubSubPublisher{
		client:    client,
		projectID: projectID,
		logger:    txoutbox.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish sends msg to its Destination, or else to the default topic,
// deriving a destination from the message's type tag only when neither is
// set, and classifies any publish error per Classify.
func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) error {
	destination := msg.Destination
	if destination == "" {
		destination = p.defaultTopic
	}
	if destination == "" {
		destination = p.deriveDestination(msg.TypeTag)
		p.logger.Warn("broker: destination not set, derived from event type", "type_tag", msg.TypeTag, "destination", destination)
	}
	if destination == "" {
		return &PermanentBroker{Err: fmt.Errorf("broker: no destination for event %q and no default topic configured", msg.TypeTag)}
	}

	publisher := p.publisherFor(destination)

	id := msg.ID.String()

	result := publisher.Publish(ctx, &pubsub.Message{
		Data: msg.Body,
		Attributes: map[string]string{
			"message_id":           id,
			"correlation_id":       id,
			"subject":              shortName(msg.TypeTag),
			"event_type_full_name": msg.TypeTag,
			"content_type":         msg.ContentType,
		},
	})

	if _, err := result.Get(ctx); err != nil {
		return Classify(err)
	}

	return nil
}

func (p *PubSubPublisher) publisherFor(destination string) *pubsub.Publisher {
	if cached, ok := p.publishers.Load(destination); ok {
		return cached.(*pubsub.Publisher)
	}

	fullName := p.topicResourceName(destination)
	publisher := p.client.Publisher(fullName)

	actual, _ := p.publishers.LoadOrStore(destination, publisher)

	return actual.(*pubsub.Publisher)
}

func (p *PubSubPublisher) topicResourceName(name string) string {
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}

	return fmt.Sprintf("projects/%s/topics/%s", p.projectID, name)
}

// deriveDestination turns a dotted type tag (e.g. "order.placed") into a
// topic name (e.g. "order-placed"), falling back to the configured
// default topic when typeTag is empty.
func (p *PubSubPublisher) deriveDestination(typeTag string) string {
	if typeTag == "" {
		return p.defaultTopic
	}

	return strings.ReplaceAll(typeTag, ".", "-")
}

// shortName returns the last dot-separated segment of a type tag (e.g.
// "placed" for "order.placed"), used as the message subject.
func shortName(typeTag string) string {
	if i := strings.LastIndex(typeTag, "."); i >= 0 {
		return typeTag[i+1:]
	}

	return typeTag
}

// Stop releases every cached publisher's send buffer. Callers should call
// this during shutdown, before closing the underlying client.
func (p *PubSubPublisher) Stop() {
	p.publishers.Range(func(_, value any) bool {
		value.(*pubsub.Publisher).Stop()

		return true
	})
}

var _ Publisher = (*PubSubPublisher)(nil)
