package item

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EffortCeilingError is returned when a task's declared effort exceeds
// the ceiling fixed by its type. The ceiling is enforced at creation
// time only; existing tasks are never re-validated.
type EffortCeilingError struct {
	Type    TaskType
	Effort  int
	Ceiling int
}

func (e *EffortCeilingError) Error() string {
	return fmt.Sprintf("task type %q caps effort at %d points, got %d", e.Type, e.Ceiling, e.Effort)
}

// Task is an atomic unit of work, owned by a work item or pooled into
// the continuous backlog for the pooled task types.
type Task struct {
	ID string `json:"id"`

	// WorkItemID is empty for pooled tasks.
	WorkItemID string `json:"work_item_id,omitempty"`

	Type  TaskType `json:"type"`
	Title string   `json:"title"`
	State State    `json:"state"`

	// HeldState remembers the core state held before blocking.
	HeldState State `json:"held_state,omitempty"`

	// Effort is the declared estimate in points. Zero means unestimated,
	// which the planning gate rejects.
	Effort int `json:"effort"`

	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria,omitempty"`

	// Blockers lists unresolved impediments. A task with blockers cannot
	// enter the active state.
	Blockers []string `json:"blockers,omitempty"`

	// DependsOn lists task ids that must complete first. The planning
	// gate requires the resulting graph to be acyclic.
	DependsOn []string `json:"depends_on,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a task under a work item, or in the continuous backlog
// when workItemID is empty and the type allows pooling. The effort
// ceiling is enforced here and nowhere else.
func NewTask(workItemID string, typ TaskType, title string, effort int) (*Task, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if workItemID == "" && !typ.Pooled() {
		return nil, fmt.Errorf("task type %q requires a parent work item", typ)
	}
	if effort < 0 {
		return nil, fmt.Errorf("effort must be non-negative, got %d", effort)
	}
	if ceiling := typ.EffortCeiling(); effort > ceiling {
		return nil, &EffortCeilingError{Type: typ, Effort: effort, Ceiling: ceiling}
	}
	now := time.Now().UTC()
	return &Task{
		ID:         uuid.New().String(),
		WorkItemID: workItemID,
		Type:       typ,
		Title:      title,
		State:      StateDraft,
		Effort:     effort,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Pooled reports whether the task lives in the continuous backlog.
func (t *Task) Pooled() bool {
	return t.WorkItemID == ""
}

// UnresolvedBlockers returns the number of blockers still open.
func (t *Task) UnresolvedBlockers() int {
	return len(t.Blockers)
}
