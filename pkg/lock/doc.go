// Package lock provides per-tenant mutual exclusion for event processing.
//
// A single process gets this for free from the ledger store's unit of work;
// the Redis lock extends the same guarantee across processes when multiple
// worker instances pull from a shared event store. Locks are leases: they
// expire on their own if the holder dies, and release is a compare-and-delete
// so an expired holder cannot release a lock someone else now owns.
package lock
