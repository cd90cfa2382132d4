// Package processor turns provider events into ledger state changes,
// exactly once from the business-logic perspective despite at-least-once
// delivery.
//
// Deduplication rests entirely on the event store's identifier uniqueness:
// Ingest appends first and only the append winner applies business logic,
// so replays and concurrent redeliveries collapse to one net effect. All
// derived writes for an event (subscription status, invoice balances,
// payment rows) happen inside a single tenant-scoped unit of work.
//
// Failure handling follows a fixed taxonomy: duplicates are benign,
// malformed payloads are stored and quarantined for manual review,
// transient store errors are retried by sweep up to a bounded budget, and
// business-rule violations are recorded on the event and never retried.
package processor
