package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
)

func TestOwnerForPhaseIsTotal(t *testing.T) {
	seen := make(map[OrchestratorID]bool)
	for _, p := range item.AllPhases() {
		owner := OwnerForPhase(p)
		assert.NotEmpty(t, owner, "phase %s", p)
		assert.False(t, seen[owner], "owner %s reused", owner)
		seen[owner] = true
	}
}

func TestRegistryRegisterAndSelect(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(ExecutorDescriptor{
		ID:           "writer-b",
		Capabilities: []gates.RequirementID{gates.ReqJustificationLength},
	}))
	require.NoError(t, r.Register(ExecutorDescriptor{
		ID:           "writer-a",
		Capabilities: []gates.RequirementID{gates.ReqJustificationLength, gates.ReqCriteriaCount},
	}))

	// Ordered by executor id regardless of registration order.
	assert.Equal(t, []ExecutorID{"writer-a", "writer-b"}, r.Select(gates.ReqJustificationLength))
	assert.Equal(t, []ExecutorID{"writer-a"}, r.Select(gates.ReqCriteriaCount))
	assert.Empty(t, r.Select(gates.ReqRiskDeclared))
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ExecutorDescriptor{
		ID:           "writer",
		Capabilities: []gates.RequirementID{gates.ReqJustificationLength},
	}))
	require.NoError(t, r.Register(ExecutorDescriptor{
		ID:           "writer",
		Capabilities: []gates.RequirementID{gates.ReqRiskDeclared},
	}))

	assert.Empty(t, r.Select(gates.ReqJustificationLength))
	assert.Equal(t, []ExecutorID{"writer"}, r.Select(gates.ReqRiskDeclared))
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(ExecutorDescriptor{Capabilities: []gates.RequirementID{gates.ReqRiskDeclared}}))
	assert.Error(t, r.Register(ExecutorDescriptor{ID: "empty"}))
}

func TestRoute(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(ExecutorDescriptor{
		ID:           "scorer",
		Capabilities: []gates.RequirementID{gates.ReqConfidenceThreshold},
	}))
	require.NoError(t, registry.Register(ExecutorDescriptor{
		ID:           "writer-b",
		Capabilities: []gates.RequirementID{gates.ReqJustificationLength},
	}))
	require.NoError(t, registry.Register(ExecutorDescriptor{
		ID:           "writer-a",
		Capabilities: []gates.RequirementID{gates.ReqJustificationLength},
	}))
	router := NewRouter(registry)

	wi, err := item.NewWorkItem(item.TypeFeature, "streaming export")
	require.NoError(t, err)

	missing := []gates.MissingRequirement{
		{ID: gates.ReqJustificationLength, Description: "too short"},
		{ID: gates.ReqRiskDeclared, Description: "no risks"},
		{ID: gates.ReqConfidenceThreshold, Description: "too low"},
	}

	assignment, err := router.Route(Artifact{Kind: KindWorkItem, Item: wi}, missing)
	require.NoError(t, err)
	assert.Equal(t, OwnerDiscovery, assignment.PhaseOwner)

	// One invocation per (requirement, capable executor) pair, missing
	// order first, executor id order within. The unserviceable risk
	// requirement plans nothing.
	require.Len(t, assignment.Invocations, 3)
	assert.Equal(t, ExecutorID("writer-a"), assignment.Invocations[0].Executor)
	assert.Equal(t, gates.ReqJustificationLength, assignment.Invocations[0].Requirement.ID)
	assert.Equal(t, ExecutorID("writer-b"), assignment.Invocations[1].Executor)
	assert.Equal(t, ExecutorID("scorer"), assignment.Invocations[2].Executor)
	assert.Equal(t, gates.ReqConfidenceThreshold, assignment.Invocations[2].Requirement.ID)

	assert.Equal(t, []ExecutorID{"writer-a", "writer-b", "scorer"}, assignment.Executors())
}

func TestRouteRejectsNonWorkItems(t *testing.T) {
	router := NewRouter(nil)

	_, err := router.Route(Artifact{Kind: KindTask}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no phase owner")

	_, err = router.Route(Artifact{Kind: KindWorkItem}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carries no work item")
}
