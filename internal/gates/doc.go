// Package gates implements phase-gate validation for work items.
//
// Each work item type fixes an ordered phase sequence; a phase boundary
// may only be crossed once every criterion of the gate guarding it
// holds. Criteria are declarative, keyed by a machine-checkable
// requirement id, and evaluated against the item's fields and its
// children's states. A failed evaluation enumerates every unmet
// criterion, not just the first, so callers can both display the result
// and programmatically re-check remediation.
//
// Attempting to validate a phase outside the item type's declared
// sequence is a hard rejection (ForbiddenPhaseError), never a
// missing-requirement list.
//
// The validator never mutates state; advancing the phase on a passed
// gate is the coordinator's job.
package gates
