package domainevent

import "errors"

var (
	// ErrUnregisteredType is returned by Encode when no codec is registered
	// for the event's concrete Go type.
	ErrUnregisteredType = errors.New("domainevent: no codec registered for type")
	// ErrUnknownType is returned by Decode when the type tag has no codec.
	ErrUnknownType = errors.New("domainevent: unknown type tag")
	// ErrMalformed is returned by Decode when the payload fails to unmarshal.
	ErrMalformed = errors.New("domainevent: malformed payload")
)
