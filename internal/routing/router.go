package routing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
)

// ArtifactKind classifies what is being routed.
type ArtifactKind string

const (
	KindWorkItem ArtifactKind = "work_item"
	KindTask     ArtifactKind = "task"
	KindIdea     ArtifactKind = "idea"
)

// OrchestratorID identifies a phase owner.
type OrchestratorID string

// Phase owners, one per lifecycle phase.
const (
	OwnerDiscovery      OrchestratorID = "discovery-owner"
	OwnerPlanning       OrchestratorID = "planning-owner"
	OwnerImplementation OrchestratorID = "implementation-owner"
	OwnerReview         OrchestratorID = "review-owner"
	OwnerOperations     OrchestratorID = "operations-owner"
	OwnerEvolution      OrchestratorID = "evolution-owner"
)

// phaseOwners maps every phase to its owner. The table is total.
var phaseOwners = map[item.Phase]OrchestratorID{
	item.PhaseDiscovery:      OwnerDiscovery,
	item.PhasePlanning:       OwnerPlanning,
	item.PhaseImplementation: OwnerImplementation,
	item.PhaseReview:         OwnerReview,
	item.PhaseOperations:     OwnerOperations,
	item.PhaseEvolution:      OwnerEvolution,
}

// OwnerForPhase returns the phase owner responsible for p.
func OwnerForPhase(p item.Phase) OrchestratorID {
	owner, ok := phaseOwners[p]
	if !ok {
		panic("routing: unknown phase " + string(p))
	}
	return owner
}

// ExecutorID identifies a narrow executor in the registry.
type ExecutorID string

// ExecutorDescriptor declares an executor and the requirement ids it can
// produce evidence for.
type ExecutorDescriptor struct {
	ID           ExecutorID
	Capabilities []gates.RequirementID
}

// Registry holds capability-tagged executor descriptors. Selection is a
// pure function from a missing requirement id to the executors able to
// serve it, ordered by executor id for reproducibility.
type Registry struct {
	mu            sync.RWMutex
	byID          map[ExecutorID]ExecutorDescriptor
	byRequirement map[gates.RequirementID][]ExecutorID
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:          make(map[ExecutorID]ExecutorDescriptor),
		byRequirement: make(map[gates.RequirementID][]ExecutorID),
	}
}

// Register adds an executor descriptor. Registering the same id twice
// replaces the earlier descriptor.
func (r *Registry) Register(desc ExecutorDescriptor) error {
	if desc.ID == "" {
		return fmt.Errorf("executor id is required")
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("executor %s declares no capabilities", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[desc.ID]; ok {
		for _, cap := range old.Capabilities {
			r.byRequirement[cap] = removeID(r.byRequirement[cap], desc.ID)
		}
	}
	r.byID[desc.ID] = desc
	for _, cap := range desc.Capabilities {
		ids := append(r.byRequirement[cap], desc.ID)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		r.byRequirement[cap] = ids
	}
	return nil
}

// Select returns the executors able to produce evidence for the given
// requirement, ordered by executor id.
func (r *Registry) Select(id gates.RequirementID) []ExecutorID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byRequirement[id]
	out := make([]ExecutorID, len(ids))
	copy(out, ids)
	return out
}

func removeID(ids []ExecutorID, id ExecutorID) []ExecutorID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Artifact is the unit the router dispatches: an entity plus its current
// phase.
type Artifact struct {
	Kind ArtifactKind
	Item *item.WorkItem
}

// Invocation pairs one executor with the missing requirement it is asked
// to satisfy.
type Invocation struct {
	Executor    ExecutorID
	Requirement gates.MissingRequirement
}

// Assignment is the router's answer: the phase owner responsible for the
// boundary and the ordered executor invocations it planned.
type Assignment struct {
	PhaseOwner  OrchestratorID
	Invocations []Invocation
}

// Executors returns the distinct executor ids in invocation order.
func (a Assignment) Executors() []ExecutorID {
	seen := make(map[ExecutorID]bool, len(a.Invocations))
	var ids []ExecutorID
	for _, inv := range a.Invocations {
		if !seen[inv.Executor] {
			seen[inv.Executor] = true
			ids = append(ids, inv.Executor)
		}
	}
	return ids
}

// Router is the top-level dispatcher. It resolves the phase owner for an
// artifact and has that owner plan executor invocations for whatever is
// still missing.
type Router struct {
	registry *Registry
}

// NewRouter creates a router backed by the given executor registry.
func NewRouter(registry *Registry) *Router {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Router{registry: registry}
}

// Registry returns the router's executor registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Route resolves the phase owner for the artifact and plans one
// invocation per (missing requirement, capable executor) pair, in
// missing order then executor id order. Already-satisfied criteria are
// never routed; missing requirements with no capable executor produce
// no invocation and remain for the caller to surface.
func (r *Router) Route(artifact Artifact, missing []gates.MissingRequirement) (Assignment, error) {
	if artifact.Kind != KindWorkItem {
		return Assignment{}, fmt.Errorf("artifact kind %q has no phase owner", artifact.Kind)
	}
	if artifact.Item == nil {
		return Assignment{}, fmt.Errorf("artifact carries no work item")
	}

	assignment := Assignment{PhaseOwner: OwnerForPhase(artifact.Item.Phase)}
	for _, m := range missing {
		for _, id := range r.registry.Select(m.ID) {
			assignment.Invocations = append(assignment.Invocations, Invocation{
				Executor:    id,
				Requirement: m,
			})
		}
	}
	return assignment, nil
}
