// Package store defines the entity storage contract the workflow core
// depends on, plus two adapters: an in-memory store used by tests and
// ephemeral runs, and a SQLite-backed store for durable deployments.
//
// The contract is deliberately narrow: get by id, put guarded by an
// expected version (optimistic concurrency), predicate queries, and a
// write-once transition history. The core is unaware of how records are
// stored; entities travel as opaque JSON payloads.
//
// Every state mutation for a given entity must be applied as a single
// compare-and-swap on the record version. A stale version returns
// ErrVersionConflict, which the core always surfaces to the caller for
// an explicit retry with a fresh read; it is never retried silently.
package store
