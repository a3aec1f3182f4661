// Package item defines the work tracking data model: work items, tasks,
// and ideas, together with the fixed enumerations (states, phases, item
// and task types) that the rest of trackd keys its behavior off.
//
// All lifecycle behavior is table-driven. The phase→state mapping, the
// per-type phase sequences, the per-type required task types, and the
// per-task-type effort ceilings are declared here as total mappings so
// that the state machine and the gate validator never branch on string
// comparisons.
package item
