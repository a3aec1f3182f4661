package item

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AcceptanceCriterion is a single verifiable completion condition.
type AcceptanceCriterion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Verified bool   `json:"verified"`
}

// Risk is a declared delivery risk with an optional mitigation.
type Risk struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation,omitempty"`
}

// Defect is a known problem attributed to a work item. Open defects
// block the review gate.
type Defect struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Open        bool   `json:"open"`
}

// WorkItem is a unit of deliverable value progressing through a
// phase-gated lifecycle determined by its type.
type WorkItem struct {
	ID            string       `json:"id"`
	Type          WorkItemType `json:"type"`
	Title         string       `json:"title"`
	State         State        `json:"state"`
	Phase         Phase        `json:"phase"`
	Priority      Priority     `json:"priority"`
	Justification string       `json:"justification,omitempty"`

	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria,omitempty"`
	Risks              []Risk                `json:"risks,omitempty"`
	Defects            []Defect              `json:"defects,omitempty"`

	// Confidence scores how well-formed the discovery context is (0.0-1.0).
	Confidence float64 `json:"confidence"`

	// DependsOn lists work item ids that must advance before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// ReleaseRecord is the deployment marker supplied by an external
	// collaborator. The operations gate checks presence only.
	ReleaseRecord string `json:"release_record,omitempty"`

	// HeldState remembers the core state held before blocking so the
	// item can resume where it left off. Empty unless State is blocked.
	HeldState State `json:"held_state,omitempty"`

	// Evidence holds opaque executor payloads keyed by the requirement
	// id they were produced for. The core never interprets these.
	Evidence map[string]json.RawMessage `json:"evidence,omitempty"`

	// IdeaID is the originating idea, if this item was converted.
	IdeaID string `json:"idea_id,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkItem creates a work item of the given type in the initial phase
// of the type's sequence, with the state derived from that phase.
func NewWorkItem(typ WorkItemType, title string) (*WorkItem, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown work item type %q", typ)
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	first := typ.PhaseSequence()[0]
	now := time.Now().UTC()
	return &WorkItem{
		ID:        uuid.New().String(),
		Type:      typ,
		Title:     title,
		Phase:     first,
		State:     first.State(),
		Priority:  PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NextPhase returns the phase following the item's current phase in its
// type's sequence, or false when the item is at its final phase.
func (w *WorkItem) NextPhase() (Phase, bool) {
	return w.Type.NextPhase(w.Phase)
}

// AtFinalPhase reports whether the item has no further phase to enter.
func (w *WorkItem) AtFinalPhase() bool {
	_, ok := w.NextPhase()
	return !ok
}

// StateConsistent reports whether the item's state agrees with the fixed
// phase→state mapping. Administrative overrides are exempt, as are items
// that finished their final phase and stepped further along the core
// path toward done/archived.
func (w *WorkItem) StateConsistent() bool {
	if w.State.Administrative() {
		return true
	}
	derived := w.Phase.State()
	if w.State == derived {
		return true
	}
	if w.AtFinalPhase() {
		return coreIndex(w.State) > coreIndex(derived)
	}
	return false
}

// OpenDefects returns the defects still open against the item.
func (w *WorkItem) OpenDefects() []Defect {
	var open []Defect
	for _, d := range w.Defects {
		if d.Open {
			open = append(open, d)
		}
	}
	return open
}

// UnverifiedCriteria returns the acceptance criteria not yet verified.
func (w *WorkItem) UnverifiedCriteria() []AcceptanceCriterion {
	var pending []AcceptanceCriterion
	for _, c := range w.AcceptanceCriteria {
		if !c.Verified {
			pending = append(pending, c)
		}
	}
	return pending
}

// SetEvidence stores an opaque executor payload under the requirement id
// it satisfies.
func (w *WorkItem) SetEvidence(requirementID string, payload json.RawMessage) {
	if w.Evidence == nil {
		w.Evidence = make(map[string]json.RawMessage)
	}
	w.Evidence[requirementID] = payload
}
