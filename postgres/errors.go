package postgres

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("outbox postgres: db is required")
	// ErrExecutorRequired is returned when enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("outbox postgres: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox postgres: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox postgres: invalid table name")
	// ErrPartitionsRequired is returned when partition definitions are missing.
	ErrPartitionsRequired = errors.New("outbox postgres: partitions are required")
	// ErrInvalidPartition is returned when a partition definition is invalid.
	ErrInvalidPartition = errors.New("outbox postgres: invalid partition definition")
	// ErrPartitionPeriodRequired is returned when the partition period is missing or invalid.
	ErrPartitionPeriodRequired = errors.New("outbox postgres: partition period is required")
	// ErrPartitionRetentionInvalid is returned when retention is negative.
	ErrPartitionRetentionInvalid = errors.New("outbox postgres: partition retention must be non-negative")
	// ErrPartitionDescriptionInvalid is returned when a partition bound cannot be parsed.
	ErrPartitionDescriptionInvalid = errors.New("outbox postgres: invalid partition bound")
	// ErrPartitionNameConflict is returned when a generated partition name already exists.
	ErrPartitionNameConflict = errors.New("outbox postgres: partition name conflict")
	// ErrPartitionedTableRequired is returned when the table is not partitioned.
	ErrPartitionedTableRequired = errors.New("outbox postgres: table is not partitioned")
	// ErrPartitionMaxRequired is returned when the open-ended tail partition is missing.
	ErrPartitionMaxRequired = errors.New("outbox postgres: MAXVALUE tail partition is required")
	// ErrCleanupBeforeRequired is returned when cleanup cutoff is missing.
	ErrCleanupBeforeRequired = errors.New("outbox postgres: cleanup before time is required")
	// ErrCleanupLimitInvalid is returned when cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("outbox postgres: cleanup limit must be non-negative")
	// ErrCleanupRetentionInvalid is returned when cleanup retention is not positive.
	ErrCleanupRetentionInvalid = errors.New("outbox postgres: cleanup retention must be positive")
)
