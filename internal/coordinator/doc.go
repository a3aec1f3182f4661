// Package coordinator orchestrates the workflow core end to end.
//
// An advancement request moves through Validating (state machine plus
// phase-gate evaluation), then, when criteria are missing and executors
// can produce them, a bounded Routing/Executing remediation loop, and
// finally Persisting, which applies the new state and phase as a single
// compare-and-swap against the entity store. A request that cannot pass
// its gate returns a structured block report naming every unmet
// criterion and, where known, the exact remediation action; stored state
// is never mutated on failure.
//
// Requests are scoped: each advancement for an entity runs to completion
// or to a terminal block before another is accepted for the same entity,
// enforced by the store's optimistic concurrency rather than locks.
// Distinct entities may be processed concurrently.
package coordinator
