package unitofwork

import "errors"

var (
	// ErrDBRequired is returned when New is called with a nil *sql.DB.
	ErrDBRequired = errors.New("unitofwork: db is required")
	// ErrAlreadyActive is returned by Begin when a transaction is already open.
	ErrAlreadyActive = errors.New("unitofwork: transaction already active")
	// ErrNotActive is returned by Save/Commit when no transaction is open.
	ErrNotActive = errors.New("unitofwork: no active transaction")
)
