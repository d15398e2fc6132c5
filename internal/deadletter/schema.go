package deadletter

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	record_id UUID NOT NULL,
	aggregate_type VARCHAR(128) NOT NULL,
	aggregate_id VARCHAR(128) NOT NULL,
	event_type VARCHAR(128) NOT NULL,
	payload JSONB NOT NULL,
	reason VARCHAR(1024) NOT NULL,
	attempt_count INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %s_record_id_idx ON %s (record_id);`

// Schema returns the CREATE TABLE statement for the dead-letter table.
func Schema(table string) string {
	return fmt.Sprintf(schemaTemplate, table, table, table)
}
