package item

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkItemStartsAtInitialPhase(t *testing.T) {
	tests := []struct {
		typ   WorkItemType
		phase Phase
		state State
	}{
		{TypeFeature, PhaseDiscovery, StateDraft},
		{TypeBugfix, PhaseImplementation, StateActive},
		{TypeResearch, PhaseDiscovery, StateDraft},
		{TypeChore, PhaseImplementation, StateActive},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			wi, err := NewWorkItem(tt.typ, "title")
			require.NoError(t, err)
			assert.Equal(t, tt.phase, wi.Phase)
			assert.Equal(t, tt.state, wi.State)
			assert.Equal(t, PriorityMedium, wi.Priority)
			assert.True(t, wi.StateConsistent())
		})
	}
}

func TestNewWorkItemValidation(t *testing.T) {
	_, err := NewWorkItem(WorkItemType("epic"), "title")
	assert.Error(t, err)

	_, err = NewWorkItem(TypeFeature, "")
	assert.Error(t, err)
}

func TestStateConsistent(t *testing.T) {
	wi, err := NewWorkItem(TypeBugfix, "crash on empty payload")
	require.NoError(t, err)

	// Derived state matches.
	assert.True(t, wi.StateConsistent())

	// Administrative overrides are always consistent.
	wi.State = StateBlocked
	assert.True(t, wi.StateConsistent())
	wi.State = StateCancelled
	assert.True(t, wi.StateConsistent())

	// Past the final phase the state may run ahead of the mapping.
	wi.Phase = PhaseReview
	wi.State = StateDone
	assert.True(t, wi.AtFinalPhase())
	assert.True(t, wi.StateConsistent())
	wi.State = StateArchived
	assert.True(t, wi.StateConsistent())

	// But never behind it.
	wi.State = StateDraft
	assert.False(t, wi.StateConsistent())

	// Mid-sequence the mapping is exact.
	feature, err := NewWorkItem(TypeFeature, "streaming export")
	require.NoError(t, err)
	feature.Phase = PhasePlanning
	feature.State = StateActive
	assert.False(t, feature.StateConsistent())
}

func TestOpenDefectsAndUnverifiedCriteria(t *testing.T) {
	wi, err := NewWorkItem(TypeFeature, "streaming export")
	require.NoError(t, err)

	wi.AcceptanceCriteria = []AcceptanceCriterion{
		{ID: "c1", Text: "exports resume after restart", Verified: true},
		{ID: "c2", Text: "exports are chunked"},
	}
	wi.Defects = []Defect{
		{ID: "d1", Description: "chunk boundary corruption", Open: true},
		{ID: "d2", Description: "typo in log line", Open: false},
	}

	pending := wi.UnverifiedCriteria()
	require.Len(t, pending, 1)
	assert.Equal(t, "c2", pending[0].ID)

	open := wi.OpenDefects()
	require.Len(t, open, 1)
	assert.Equal(t, "d1", open[0].ID)
}

func TestSetEvidence(t *testing.T) {
	wi, err := NewWorkItem(TypeFeature, "streaming export")
	require.NoError(t, err)

	payload := json.RawMessage(`{"scan":"clean"}`)
	wi.SetEvidence("X1.custom_check", payload)
	require.Contains(t, wi.Evidence, "X1.custom_check")
	assert.JSONEq(t, `{"scan":"clean"}`, string(wi.Evidence["X1.custom_check"]))
}
