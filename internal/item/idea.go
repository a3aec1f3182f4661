package item

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdeaState is the simple terminal-state machine for pre-formal ideas,
// outside the phase-gated lifecycle.
type IdeaState string

const (
	// IdeaRaw is a freshly captured thought.
	IdeaRaw IdeaState = "idea"

	// IdeaResearch means the idea is being investigated.
	IdeaResearch IdeaState = "research"

	// IdeaDesign means the idea is being shaped into a proposal.
	IdeaDesign IdeaState = "design"

	// IdeaAccepted means the idea is approved for conversion.
	IdeaAccepted IdeaState = "accepted"

	// IdeaConverted is terminal: the idea became a work item.
	IdeaConverted IdeaState = "converted"

	// IdeaRejected is terminal: the idea was declined.
	IdeaRejected IdeaState = "rejected"
)

// IdeaPath returns the forward path of the idea machine in order.
func IdeaPath() []IdeaState {
	return []IdeaState{IdeaRaw, IdeaResearch, IdeaDesign, IdeaAccepted, IdeaConverted}
}

// Valid reports whether s is a known idea state.
func (s IdeaState) Valid() bool {
	switch s {
	case IdeaRaw, IdeaResearch, IdeaDesign, IdeaAccepted, IdeaConverted, IdeaRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no outbound transitions. A converted
// or rejected idea is immutable.
func (s IdeaState) Terminal() bool {
	return s == IdeaConverted || s == IdeaRejected
}

// Idea is a pre-formal thought that may eventually convert into a work
// item. Conversion is one-directional.
type Idea struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Summary string    `json:"summary,omitempty"`
	State   IdeaState `json:"state"`

	// WorkItemID is set once the idea has been converted.
	WorkItemID string `json:"work_item_id,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewIdea captures a new idea in the initial state.
func NewIdea(title, summary string) (*Idea, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	now := time.Now().UTC()
	return &Idea{
		ID:        uuid.New().String(),
		Title:     title,
		Summary:   summary,
		State:     IdeaRaw,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
