package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
	"github.com/fyrsmithlabs/trackd/internal/lifecycle"
	"github.com/fyrsmithlabs/trackd/internal/routing"
	"github.com/fyrsmithlabs/trackd/internal/store"
)

// Config tunes the coordinator's remediation behavior.
type Config struct {
	// RemediationPasses bounds the Routing/Executing loop per
	// advancement request. The default is a single pass; there are no
	// infinite remediation loops.
	RemediationPasses int `koanf:"remediation_passes"`

	// CascadeBlock controls whether blocking a work item also blocks its
	// non-terminal tasks. When false (the default) children keep
	// progressing independently.
	CascadeBlock bool `koanf:"cascade_block"`
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{RemediationPasses: 1}
}

// CreateWorkItemRequest creates a work item in the initial phase of its
// type's sequence.
type CreateWorkItemRequest struct {
	Type          item.WorkItemType `json:"type"`
	Title         string            `json:"title"`
	Priority      item.Priority     `json:"priority,omitempty"`
	Justification string            `json:"justification,omitempty"`
	Confidence    float64           `json:"confidence,omitempty"`

	// AcceptanceCriteria and Risks are free-text; ids are assigned on
	// creation.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Risks              []string `json:"risks,omitempty"`
	DependsOn          []string `json:"depends_on,omitempty"`
}

// CreateTaskRequest creates a task under a work item, or pooled into the
// continuous backlog when WorkItemID is empty.
type CreateTaskRequest struct {
	WorkItemID string        `json:"work_item_id,omitempty"`
	Type       item.TaskType `json:"type"`
	Title      string        `json:"title"`
	Effort     int           `json:"effort"`
	DependsOn  []string      `json:"depends_on,omitempty"`
}

// CreateIdeaRequest captures a pre-formal idea.
type CreateIdeaRequest struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// UpdateWorkItemRequest mutates discovery and review fields on a work
// item. Nil fields are left untouched. Updates are CAS-guarded like any
// other write.
type UpdateWorkItemRequest struct {
	Justification         *string  `json:"justification,omitempty"`
	Confidence            *float64 `json:"confidence,omitempty"`
	Priority              *string  `json:"priority,omitempty"`
	AddAcceptanceCriteria []string `json:"add_acceptance_criteria,omitempty"`
	VerifyCriteria        []string `json:"verify_criteria,omitempty"`
	VerifyAllCriteria     bool     `json:"verify_all_criteria,omitempty"`
	AddRisks              []string `json:"add_risks,omitempty"`
	AddDefects            []string `json:"add_defects,omitempty"`
	CloseDefects          []string `json:"close_defects,omitempty"`
	ReleaseRecord         *string  `json:"release_record,omitempty"`
}

// UpdateTaskRequest mutates a task's blockers and dependencies. Effort
// is fixed at creation and deliberately absent here.
type UpdateTaskRequest struct {
	AddBlockers     []string `json:"add_blockers,omitempty"`
	ResolveBlockers []string `json:"resolve_blockers,omitempty"`
	AddDependencies []string `json:"add_dependencies,omitempty"`
}

// ExecutorFailure is one aggregated executor-tier failure inside a block
// report.
type ExecutorFailure struct {
	Executor    routing.ExecutorID  `json:"executor"`
	Requirement gates.RequirementID `json:"requirement"`
	Message     string              `json:"message"`
}

// BlockReport is the structured answer to an advancement that could not
// pass its gate. It names every unmet criterion and every executor
// failure from the bounded remediation pass.
type BlockReport struct {
	EntityID         string                     `json:"entity_id"`
	Phase            item.Phase                 `json:"phase"`
	Target           item.Phase                 `json:"target,omitempty"`
	Missing          []gates.MissingRequirement `json:"missing"`
	ExecutorFailures []ExecutorFailure          `json:"executor_failures,omitempty"`
	RemediationRuns  int                        `json:"remediation_runs"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// GateNotSatisfiedError carries a block report out of a failed
// advancement. It may trigger one bounded remediation pass before being
// surfaced; it is never retried beyond that.
type GateNotSatisfiedError struct {
	Report *BlockReport
}

func (e *GateNotSatisfiedError) Error() string {
	return fmt.Sprintf("gate into %s not satisfied: %d requirements missing",
		e.Report.Target, len(e.Report.Missing))
}

// AdvanceResult is a successful advancement outcome.
type AdvanceResult struct {
	Item *item.WorkItem `json:"item"`

	// Remediated is true when the gate only passed after the
	// remediation pass produced missing evidence.
	Remediated bool `json:"remediated,omitempty"`
}

// WorkItemView is the show surface: current state and phase, children,
// history, and the last block report if any.
type WorkItemView struct {
	Item      *item.WorkItem            `json:"item"`
	Tasks     []*item.Task              `json:"tasks,omitempty"`
	History   []*store.TransitionRecord `json:"history,omitempty"`
	LastBlock *BlockReport              `json:"last_block,omitempty"`
}

// Response codes for the command surface.
const (
	CodeOK                = 0
	CodeNotFound          = 1
	CodeIllegalTransition = 2
	CodeGateNotSatisfied  = 3
	CodeStorageConflict   = 4
)

// ResponseCode maps an operation error onto the command surface's exit
// codes.
func ResponseCode(err error) int {
	if err == nil {
		return CodeOK
	}
	var (
		illegal     *lifecycle.IllegalTransitionError
		illegalIdea *lifecycle.IllegalIdeaTransitionError
		forbidden   *gates.ForbiddenPhaseError
		gate        *GateNotSatisfiedError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.As(err, &illegal), errors.As(err, &illegalIdea), errors.As(err, &forbidden):
		return CodeIllegalTransition
	case errors.As(err, &gate):
		return CodeGateNotSatisfied
	case errors.Is(err, store.ErrVersionConflict):
		return CodeStorageConflict
	}
	// Internal faults (storage I/O, encoding) share the generic failure
	// code.
	return CodeNotFound
}
