package broker

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyNilIsNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) != nil")
	}
}

func TestClassifyPermanentCodes(t *testing.T) {
	for _, code := range []codes.Code{codes.PermissionDenied, codes.Unauthenticated, codes.NotFound} {
		err := Classify(status.Error(code, "boom"))
		if !IsPermanent(err) {
			t.Fatalf("code %s: want permanent, got %v", code, err)
		}
	}
}

func TestClassifyTransientCodes(t *testing.T) {
	for _, code := range []codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted} {
		err := Classify(status.Error(code, "boom"))
		if IsPermanent(err) {
			t.Fatalf("code %s: want transient, got %v", code, err)
		}
		var transient *TransientBroker
		if !errors.As(err, &transient) {
			t.Fatalf("code %s: want *TransientBroker, got %T", code, err)
		}
	}
}

func TestClassifyUnknownCodeIsTransient(t *testing.T) {
	err := Classify(errors.New("plain error"))

	var transient *TransientBroker
	if !errors.As(err, &transient) {
		t.Fatalf("want *TransientBroker, got %T", err)
	}
}

func TestTransientBrokerUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &TransientBroker{Err: inner}

	if errors.Unwrap(err) != inner {
		t.Fatal("Unwrap did not return the wrapped error")
	}
}
