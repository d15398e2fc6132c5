package txoutbox

import "context"

// FailureAction defines how a failed record should be handled.
type FailureAction int

const (
	// FailureRetry marks the record as retryable: attempts increments and
	// the record stays eligible for later Fetch calls until the store's
	// max-attempts ceiling quarantines it.
	FailureRetry FailureAction = iota
	// FailureQuarantine marks the record as a permanent failure: its status
	// becomes quarantined at once, so it is excluded from future Fetch
	// calls without waiting out the retry schedule. The postgres store
	// increments attempts by one for it; attempts is not raised to the
	// max-attempts ceiling.
	FailureQuarantine
)

// FailureClassifier decides whether a failure is retryable.
type FailureClassifier func(ctx context.Context, record Record, err error) FailureAction

func defaultFailureClassifier(context.Context, Record, error) FailureAction {
	return FailureRetry
}
