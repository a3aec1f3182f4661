package item

// State is the fine-grained lifecycle state shared by work items and tasks.
type State string

const (
	// StateDraft is the initial state of a newly created entity.
	StateDraft State = "draft"

	// StateReady indicates planning is complete and work may start.
	StateReady State = "ready"

	// StateActive indicates work is in progress.
	StateActive State = "active"

	// StateReview indicates work is complete and awaiting verification.
	StateReview State = "review"

	// StateDone indicates work is verified and released.
	StateDone State = "done"

	// StateArchived is the terminal state of successfully finished work.
	StateArchived State = "archived"

	// StateBlocked is the administrative override for stalled work.
	// It is reachable from any core state and remembers the state held
	// before blocking so the entity can resume where it left off.
	StateBlocked State = "blocked"

	// StateCancelled is the terminal administrative state.
	StateCancelled State = "cancelled"
)

// CoreStates returns the ordered core lifecycle path, excluding the
// administrative states.
func CoreStates() []State {
	return []State{StateDraft, StateReady, StateActive, StateReview, StateDone, StateArchived}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateReady, StateActive, StateReview, StateDone,
		StateArchived, StateBlocked, StateCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no outbound transitions.
func (s State) Terminal() bool {
	return s == StateArchived || s == StateCancelled
}

// Administrative reports whether s is an out-of-band override state
// rather than a position on the core lifecycle path.
func (s State) Administrative() bool {
	return s == StateBlocked || s == StateCancelled
}

// coreIndex returns the position of s on the core path, or -1 for
// administrative states.
func coreIndex(s State) int {
	for i, c := range CoreStates() {
		if c == s {
			return i
		}
	}
	return -1
}

// Phase is a coarse lifecycle stage gating major milestones. Phases are
// distinct from states: a phase boundary may only be crossed once its
// gate criteria hold, while states track day-to-day progress.
type Phase string

const (
	// PhaseDiscovery (D1) captures problem framing and justification.
	PhaseDiscovery Phase = "D1"

	// PhasePlanning (P1) decomposes the item into estimated tasks.
	PhasePlanning Phase = "P1"

	// PhaseImplementation (I1) is where the required tasks are executed.
	PhaseImplementation Phase = "I1"

	// PhaseReview (R1) verifies acceptance criteria and defect closure.
	PhaseReview Phase = "R1"

	// PhaseOperations (O1) covers release and deployment.
	PhaseOperations Phase = "O1"

	// PhaseEvolution (E1) is the post-release maintenance stage.
	PhaseEvolution Phase = "E1"
)

// AllPhases returns every phase in canonical order.
func AllPhases() []Phase {
	return []Phase{PhaseDiscovery, PhasePlanning, PhaseImplementation, PhaseReview, PhaseOperations, PhaseEvolution}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseDiscovery, PhasePlanning, PhaseImplementation,
		PhaseReview, PhaseOperations, PhaseEvolution:
		return true
	}
	return false
}

// phaseStates is the fixed phase→state mapping. A work item's state is
// always derivable from its phase through this table unless an
// administrative override is active or the item has stepped past the
// final phase of its type's sequence.
var phaseStates = map[Phase]State{
	PhaseDiscovery:      StateDraft,
	PhasePlanning:       StateReady,
	PhaseImplementation: StateActive,
	PhaseReview:         StateReview,
	PhaseOperations:     StateDone,
	PhaseEvolution:      StateArchived,
}

// State returns the lifecycle state derived from p.
// Panics on an unknown phase: phases originate inside the program, so an
// unknown value is a programmer error, not a domain error.
func (p Phase) State() State {
	s, ok := phaseStates[p]
	if !ok {
		panic("item: unknown phase " + string(p))
	}
	return s
}

// WorkItemType determines an item's required phase sequence and the task
// types it must carry before it may leave planning.
type WorkItemType string

const (
	// TypeFeature is a full deliverable traversing all six phases.
	TypeFeature WorkItemType = "feature"

	// TypeBugfix is a defect repair that skips discovery and planning.
	TypeBugfix WorkItemType = "bugfix"

	// TypeResearch is an investigation that never reaches implementation.
	TypeResearch WorkItemType = "research"

	// TypeChore is routine upkeep with a short implement-review cycle.
	TypeChore WorkItemType = "chore"
)

// AllWorkItemTypes returns every work item type.
func AllWorkItemTypes() []WorkItemType {
	return []WorkItemType{TypeFeature, TypeBugfix, TypeResearch, TypeChore}
}

// Valid reports whether t is a known work item type.
func (t WorkItemType) Valid() bool {
	_, ok := typePhases[t]
	return ok
}

// typePhases maps each work item type to its ordered phase sequence.
// Phases absent from a type's sequence are forbidden for that type.
var typePhases = map[WorkItemType][]Phase{
	TypeFeature:  {PhaseDiscovery, PhasePlanning, PhaseImplementation, PhaseReview, PhaseOperations, PhaseEvolution},
	TypeBugfix:   {PhaseImplementation, PhaseReview},
	TypeResearch: {PhaseDiscovery, PhasePlanning},
	TypeChore:    {PhaseImplementation, PhaseReview},
}

// requiredTaskTypes maps each work item type to the task types that must
// exist under it before the planning gate can pass.
var requiredTaskTypes = map[WorkItemType][]TaskType{
	TypeFeature:  {TaskDesign, TaskImplementation, TaskTesting, TaskDocumentation},
	TypeBugfix:   {TaskImplementation, TaskTesting},
	TypeResearch: {TaskResearch},
	TypeChore:    nil,
}

// PhaseSequence returns the ordered phases t must traverse.
// Panics on an unknown type; callers validate user input before reaching
// this point.
func (t WorkItemType) PhaseSequence() []Phase {
	seq, ok := typePhases[t]
	if !ok {
		panic("item: unknown work item type " + string(t))
	}
	return seq
}

// Allows reports whether phase p appears in t's sequence.
func (t WorkItemType) Allows(p Phase) bool {
	for _, sp := range t.PhaseSequence() {
		if sp == p {
			return true
		}
	}
	return false
}

// RequiredTaskTypes returns the task types an item of type t must carry.
func (t WorkItemType) RequiredTaskTypes() []TaskType {
	seq, ok := requiredTaskTypes[t]
	if !ok {
		panic("item: unknown work item type " + string(t))
	}
	return seq
}

// NextPhase returns the phase following p in t's sequence, or false when
// p is the final phase (or not part of the sequence at all).
func (t WorkItemType) NextPhase(p Phase) (Phase, bool) {
	seq := t.PhaseSequence()
	for i, sp := range seq {
		if sp == p && i+1 < len(seq) {
			return seq[i+1], true
		}
	}
	return "", false
}

// TaskType bounds a task's declared effort and feeds the planning and
// implementation gates.
type TaskType string

const (
	TaskDesign         TaskType = "design"
	TaskImplementation TaskType = "implementation"
	TaskTesting        TaskType = "testing"
	TaskDocumentation  TaskType = "documentation"
	TaskResearch       TaskType = "research"
	TaskChore          TaskType = "chore"
	TaskBugfix         TaskType = "bugfix"
)

// AllTaskTypes returns every task type.
func AllTaskTypes() []TaskType {
	return []TaskType{TaskDesign, TaskImplementation, TaskTesting, TaskDocumentation, TaskResearch, TaskChore, TaskBugfix}
}

// effortCeilings is the fixed per-type effort ceiling in points.
// Implementation tasks are deliberately capped low to force decomposition
// of large changes.
var effortCeilings = map[TaskType]int{
	TaskDesign:         5,
	TaskImplementation: 3,
	TaskTesting:        5,
	TaskDocumentation:  3,
	TaskResearch:       8,
	TaskChore:          2,
	TaskBugfix:         3,
}

// pooledTaskTypes are the task types that may exist unattached to a work
// item, living in the continuous backlog instead.
var pooledTaskTypes = map[TaskType]bool{
	TaskBugfix: true,
	TaskChore:  true,
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	_, ok := effortCeilings[t]
	return ok
}

// EffortCeiling returns the maximum declared effort for tasks of type t.
func (t TaskType) EffortCeiling() int {
	c, ok := effortCeilings[t]
	if !ok {
		panic("item: unknown task type " + string(t))
	}
	return c
}

// Pooled reports whether tasks of type t may live in the continuous
// backlog without a parent work item.
func (t TaskType) Pooled() bool {
	return pooledTaskTypes[t]
}

// Priority ranks work items for scheduling. It carries no lifecycle
// semantics.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
