// Package lifecycle implements the pure state machines for work items,
// tasks, and ideas.
//
// The machines are side-effect free: callers pass a snapshot of the
// entity's current state and receive either the resulting state or an
// IllegalTransitionError carrying the specific reason the move is
// rejected. Persisting the outcome is the coordinator's job.
//
// The transition table over the core path (draft → ready → active →
// review → done → archived) is total: every (state, requested) pair
// yields a concrete outcome or a specific rejection, never a generic
// failure. The administrative states blocked and cancelled form a side
// channel independent of the core lattice; blocking records the state
// held beforehand so resuming restores the correct position.
package lifecycle
