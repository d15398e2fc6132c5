package broker

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TransientBroker wraps a broker error that is expected to succeed on
// retry (the destination was momentarily unavailable, overloaded, or the
// call timed out).
type TransientBroker struct{ Err error }

func (e *TransientBroker) Error() string { return "broker: transient: " + e.Err.Error() }
func (e *TransientBroker) Unwrap() error { return e.Err }

// PermanentBroker wraps a broker error that will not succeed on retry
// (the destination does not exist, or the caller is not authorized to
// publish to it). The relay still counts it toward attempts; the
// distinction only matters for operator-facing diagnostics.
type PermanentBroker struct{ Err error }

func (e *PermanentBroker) Error() string { return "broker: permanent: " + e.Err.Error() }
func (e *PermanentBroker) Unwrap() error { return e.Err }

// Classify wraps err as TransientBroker or PermanentBroker based on its
// gRPC status code, the shape Pub/Sub v2 returns errors in. An
// unrecognized or non-gRPC error is classified transient, since treating
// an unknown failure as permanent risks losing a message that would have
// succeeded on retry.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
		return &PermanentBroker{Err: err}
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return &TransientBroker{Err: err}
	default:
		return &TransientBroker{Err: err}
	}
}

// IsPermanent reports whether err, or an error it wraps, is a
// PermanentBroker.
func IsPermanent(err error) bool {
	var p *PermanentBroker

	return errors.As(err, &p)
}
