package domain

// Schema returns the DDL for the sample order/customer tables that exercise
// the enqueue coordinator. It is not part of the outbox engine's own
// schema (see postgres.Schema); callers that want to run the sample domain
// apply both.
const Schema = `
CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	customer_id UUID NOT NULL REFERENCES customers (id),
	status TEXT NOT NULL,
	total_cents BIGINT NOT NULL,
	paid_cents BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
