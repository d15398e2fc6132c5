// Package domainevent implements the type-tag codec registry that encodes
// domain events to outbox payloads and decodes outbox payloads back to
// typed events, grounded on the decoder/event registries this repository's
// sibling services use for their own outbox implementations.
package domainevent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Codec encodes and decodes the payload for one registered event type.
type Codec struct {
	// Encode marshals a domain event into its stored representation.
	Encode func(event any) (json.RawMessage, error)
	// Decode unmarshals a stored payload back into a domain event.
	Decode func(payload json.RawMessage) (any, error)
}

// JSONCodec builds a Codec backed by encoding/json for a concrete event type.
// newEvent must return a fresh pointer to the event's zero value (e.g. func() any
// { return &OrderPlaced{} }).
func JSONCodec(newEvent func() any) Codec {
	return Codec{
		Encode: func(event any) (json.RawMessage, error) {
			payload, err := json.Marshal(event)
			if err != nil {
				return nil, fmt.Errorf("domainevent: encode failed: %w", err)
			}

			return payload, nil
		},
		Decode: func(payload json.RawMessage) (any, error) {
			event := newEvent()
			if err := json.Unmarshal(payload, event); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}

			return event, nil
		},
	}
}

type registration struct {
	tag   string
	codec Codec
}

// Registry maps a type_tag string to a registered Codec. Registration
// happens once at process start. Encode looks up the event's dynamic type
// (reflect.TypeOf) in a map filled by Register; neither Encode nor Decode
// scans packages.
type Registry struct {
	mu       sync.RWMutex
	byTag    map[string]registration
	byGoType map[reflect.Type]registration
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:    make(map[string]registration),
		byGoType: make(map[reflect.Type]registration),
	}
}

// Register associates tag with codec and, for every sample event, the
// event's concrete Go type, so Encode can resolve the tag without a type
// switch at the caller. sample must be a non-nil value of the event type
// Encode will later be called with (a pointer or a value, matching how the
// domain package constructs the event).
func (r *Registry) Register(tag string, sample any, codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := registration{tag: tag, codec: codec}
	r.byTag[tag] = reg
	r.byGoType[reflect.TypeOf(sample)] = reg
}

// Encode resolves the type tag for event's Go type and encodes it, returning
// (type_tag, payload). It returns ErrUnregisteredType if no codec was
// registered for event's concrete type.
func (r *Registry) Encode(event any) (string, json.RawMessage, error) {
	r.mu.RLock()
	reg, ok := r.byGoType[reflect.TypeOf(event)]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %T", ErrUnregisteredType, event)
	}

	payload, err := reg.codec.Encode(event)
	if err != nil {
		return "", nil, err
	}

	return reg.tag, payload, nil
}

// Decode resolves the codec registered for tag and decodes payload.
func (r *Registry) Decode(tag string, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	reg, ok := r.byTag[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, tag)
	}

	return reg.codec.Decode(payload)
}

// Tags returns every registered type tag, for diagnostics.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}

	return tags
}
