package postgres

import (
	"fmt"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id UUID NOT NULL,
	aggregate_type VARCHAR(128) NOT NULL,
	aggregate_id VARCHAR(128) NOT NULL,
	event_type VARCHAR(128) NOT NULL,
	payload %s NOT NULL,
	headers %s NULL,
	status SMALLINT NOT NULL DEFAULT 0,
	attempt_count INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ NULL,
	created_ts BIGINT GENERATED ALWAYS AS (extract(epoch FROM created_at)::BIGINT) STORED,
	PRIMARY KEY (id%s)
)%s;
CREATE INDEX IF NOT EXISTS %s_status_created_idx ON %s (status, created_at, id);`

const (
	payloadJSON   = "JSONB"
	payloadBinary = "BYTEA"
	headersJSON   = "JSONB"
)

// Partition defines a native range partition on created_ts. From and To
// accept a literal bound expression, or the keywords MINVALUE/MAXVALUE
// for an open-ended edge, matching Postgres FOR VALUES FROM/TO syntax.
type Partition struct {
	Name string
	From string
	To   string
}

// Schema returns the base schema for an outbox table (without partitioning).
func Schema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return buildSchema(name, payloadJSON, "", ""), nil
}

// SchemaBinary returns a schema with BYTEA payload and JSONB headers.
func SchemaBinary(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return buildSchema(name, payloadBinary, "", ""), nil
}

// PartitionedSchema returns the statements needed to create a range-partitioned
// outbox table on created_ts: one CREATE TABLE ... PARTITION BY RANGE statement
// for the parent, followed by one CREATE TABLE ... PARTITION OF statement per
// partition. Postgres does not allow multiple commands in a single extended-protocol
// Exec, so callers must run the returned statements individually, in order.
func PartitionedSchema(table string, partitions []Partition) ([]string, error) {
	return partitionedSchema(table, partitions, payloadJSON)
}

// PartitionedSchemaBinary returns the same statements as PartitionedSchema
// but with a BYTEA payload column.
func PartitionedSchemaBinary(table string, partitions []Partition) ([]string, error) {
	return partitionedSchema(table, partitions, payloadBinary)
}

func partitionedSchema(table string, partitions []Partition, payloadType string) ([]string, error) {
	if len(partitions) == 0 {
		return nil, ErrPartitionsRequired
	}

	name, err := sanitizeTableName(table)
	if err != nil {
		return nil, err
	}

	stmts := make([]string, 0, len(partitions)+1)
	stmts = append(stmts, buildSchema(name, payloadType, ", created_ts", " PARTITION BY RANGE (created_ts)"))

	for _, part := range partitions {
		if part.Name == "" || part.From == "" || part.To == "" {
			return nil, ErrInvalidPartition
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM (%s) TO (%s);",
			part.Name, name, part.From, part.To,
		))
	}

	return stmts, nil
}

func buildSchema(table, payloadType, pkExtra, partitionClause string) string {
	idxName := indexSafeName(table)

	return fmt.Sprintf(schemaTemplate, table, payloadType, headersJSON, pkExtra, partitionClause, idxName, table)
}

func indexSafeName(table string) string {
	out := make([]byte, 0, len(table))
	for _, r := range table {
		if r == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r))
	}

	return string(out)
}
