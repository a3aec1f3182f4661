package gates

import "github.com/fyrsmithlabs/trackd/internal/item"

// RequirementID identifies a single gate criterion. IDs are stable and
// machine-checkable: the remediation router selects executors by them
// and callers re-check them after remediation.
type RequirementID string

const (
	// Discovery gate (exit D1).
	ReqJustificationLength RequirementID = "D1.justification_min_length"
	ReqCriteriaCount       RequirementID = "D1.acceptance_criteria_min"
	ReqRiskDeclared        RequirementID = "D1.risk_declared"
	ReqConfidenceThreshold RequirementID = "D1.confidence_threshold"

	// Planning gate (exit P1).
	ReqTaskCoverage      RequirementID = "P1.required_task_types"
	ReqEffortEstimated   RequirementID = "P1.effort_estimated"
	ReqDependencyAcyclic RequirementID = "P1.dependencies_acyclic"

	// Implementation gate (exit I1).
	ReqRequiredTasksDone RequirementID = "I1.required_tasks_done"

	// Review gate (exit R1).
	ReqCriteriaVerified RequirementID = "R1.acceptance_criteria_verified"
	ReqNoOpenDefects    RequirementID = "R1.no_open_defects"

	// Operations gate (exit O1).
	ReqReleaseRecorded RequirementID = "O1.release_recorded"
)

// Fixed gate thresholds. These are part of the gate contract, not
// configuration.
const (
	// MinJustificationLength is the minimum business justification
	// length in runes.
	MinJustificationLength = 40

	// MinAcceptanceCriteria is the minimum number of acceptance
	// criteria required to leave discovery.
	MinAcceptanceCriteria = 3

	// MinConfidence is the minimum discovery confidence score.
	MinConfidence = 0.70
)

// MissingRequirement is one unmet gate criterion, with enough detail for
// a caller to display it and act on it.
type MissingRequirement struct {
	// ID is the machine-checkable predicate id.
	ID RequirementID `json:"id"`

	// Description states what is unmet, with current values where known.
	Description string `json:"description"`

	// Remediation names the exact action that would satisfy the
	// criterion, when one is known.
	Remediation string `json:"remediation,omitempty"`
}

// GateResult is the outcome of evaluating one phase boundary.
type GateResult struct {
	// Target is the phase whose entry was evaluated.
	Target item.Phase `json:"target"`

	// Passed is true when every criterion holds.
	Passed bool `json:"passed"`

	// Missing enumerates every unmet criterion in stable evaluation
	// order. Empty when Passed.
	Missing []MissingRequirement `json:"missing,omitempty"`
}
