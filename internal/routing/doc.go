// Package routing implements the three-tier delegation hierarchy that
// decides who produces missing gate evidence.
//
// Tier one is a single router mapping an artifact's kind to exactly one
// phase owner; it never executes work itself. Tier two is one phase
// owner per lifecycle phase, each of which decomposes its gate's unmet
// criteria into an ordered list of executor invocations. Tier three is a
// registry of narrow, capability-tagged executors selected by matching
// their capabilities against what is still missing.
//
// Selection is declarative, not exhaustive: only executors relevant to
// the missing requirements are invoked, bounding the work per
// advancement attempt to O(|missing|). Executor failures are aggregated
// and returned upward unmodified; retrying is the coordinator's call.
package routing
