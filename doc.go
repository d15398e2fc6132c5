// Package txoutbox provides the transactional outbox engine: the
// at-least-once, exactly-once-to-produce event relay that sits between
// a command's database transaction and an external message broker.
//
// Typical flow:
//  1. Within a business transaction (see internal/unitofwork and
//     internal/enqueue), enqueue outbox entries using a storage-specific
//     writer.
//  2. Run a Relay with a storage-specific Consumer to poll, lock, and
//     process entries.
//  3. On success, Relay marks entries as processed; on failure it
//     increments attempts and can move entries straight to
//     StatusQuarantined once a failure is judged permanent.
//
// For the Postgres implementation (SKIP LOCKED polling, partitioning,
// retention), see the postgres package. For the sample domain that
// exercises the engine end to end, see internal/domain,
// internal/domainevent, internal/enqueue, and internal/broker.
package txoutbox
