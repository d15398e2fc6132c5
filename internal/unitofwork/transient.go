package unitofwork

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// transientFaultCodes mirrors the postgres store's classification: these
// SQLSTATEs indicate an environmental failure (connection loss,
// serialization conflict, deadlock, query canceled) rather than a defect in
// the statement itself, so the unit of work retries them. Duplicated here
// rather than imported from the postgres package, since the unit of work is
// a domain-layer concern and must not depend on the concrete store adapter.
var transientFaultCodes = map[string]bool{
	"08000": true, // connection_exception
	"08006": true, // connection_failure
	"08003": true, // connection_does_not_exist
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57014": true, // query_canceled
}

// isTransientFault reports whether err should trigger a retry of Save.
func isTransientFault(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientFaultCodes[pgErr.Code]
	}

	return false
}
