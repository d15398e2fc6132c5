// Package postgres provides a Postgres 13+ outbox implementation.
//
// The consumer uses:
//   - READ COMMITTED isolation
//   - SELECT ... FOR UPDATE SKIP LOCKED
//   - ORDER BY created_at ASC, id ASC (occurred-on order, id breaks ties)
//   - LIMIT for batching
//
// SKIP LOCKED also doubles as the multi-instance concurrency guard: a
// second relay instance racing against the first simply skips rows
// already locked by an in-flight batch, so no distributed lease is
// required as long as every instance polls through this Store.
//
// See Schema/PartitionedSchema (JSONB payloads) or SchemaBinary/PartitionedSchemaBinary
// (raw bytes), PartitionMaintainer for native range-partition rotation, and
// CleanupMaintainer for periodic row cleanup when partitions are not used.
package postgres
