package gates

import (
	"fmt"
	"unicode/utf8"

	"github.com/fyrsmithlabs/trackd/internal/item"
)

// ForbiddenPhaseError is the hard rejection for validating a phase that
// is not part of the item type's declared sequence, or that is not the
// next boundary in it. It is never expressed as a missing-requirement
// list.
type ForbiddenPhaseError struct {
	Type   item.WorkItemType
	Phase  item.Phase
	Reason string
}

func (e *ForbiddenPhaseError) Error() string {
	return fmt.Sprintf("phase %s is not reachable for type %s: %s", e.Phase, e.Type, e.Reason)
}

// Validator evaluates phase-gate criteria. It is stateless and never
// mutates its inputs.
type Validator struct{}

// NewValidator creates a gate validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateGate evaluates whether wi may cross into target, given its
// child tasks. A target outside the type's sequence, or one that skips
// ahead, returns a ForbiddenPhaseError. Otherwise the result enumerates
// every unmet criterion of the gate guarding the boundary in stable
// order.
func (v *Validator) ValidateGate(wi *item.WorkItem, tasks []*item.Task, target item.Phase) (*GateResult, error) {
	if !target.Valid() {
		return nil, &ForbiddenPhaseError{Type: wi.Type, Phase: target, Reason: "unknown phase"}
	}
	if !wi.Type.Allows(target) {
		return nil, &ForbiddenPhaseError{Type: wi.Type, Phase: target, Reason: "phase is not in the type's sequence"}
	}
	next, ok := wi.NextPhase()
	if !ok {
		return nil, &ForbiddenPhaseError{Type: wi.Type, Phase: target, Reason: fmt.Sprintf("%s is the final phase for this type", wi.Phase)}
	}
	if target != next {
		return nil, &ForbiddenPhaseError{Type: wi.Type, Phase: target, Reason: fmt.Sprintf("next boundary is %s", next)}
	}

	missing := v.ExitCriteria(wi, tasks)
	return &GateResult{
		Target:  target,
		Passed:  len(missing) == 0,
		Missing: missing,
	}, nil
}

// ExitCriteria evaluates the gate guarding the exit of the item's
// current phase and returns every unmet criterion in stable order.
// Items at a phase with no defined gate (evolution) return nil.
func (v *Validator) ExitCriteria(wi *item.WorkItem, tasks []*item.Task) []MissingRequirement {
	switch wi.Phase {
	case item.PhaseDiscovery:
		return v.discoveryCriteria(wi)
	case item.PhasePlanning:
		return v.planningCriteria(wi, tasks)
	case item.PhaseImplementation:
		return v.implementationCriteria(wi, tasks)
	case item.PhaseReview:
		return v.reviewCriteria(wi)
	case item.PhaseOperations:
		return v.operationsCriteria(wi)
	case item.PhaseEvolution:
		return nil
	}
	panic("gates: unknown phase " + string(wi.Phase))
}

func (v *Validator) discoveryCriteria(wi *item.WorkItem) []MissingRequirement {
	var missing []MissingRequirement

	if n := utf8.RuneCountInString(wi.Justification); n < MinJustificationLength {
		missing = append(missing, MissingRequirement{
			ID:          ReqJustificationLength,
			Description: fmt.Sprintf("business justification is %d characters, minimum is %d", n, MinJustificationLength),
			Remediation: "expand the business justification text",
		})
	}
	if n := len(wi.AcceptanceCriteria); n < MinAcceptanceCriteria {
		missing = append(missing, MissingRequirement{
			ID:          ReqCriteriaCount,
			Description: fmt.Sprintf("%d acceptance criteria declared, minimum is %d", n, MinAcceptanceCriteria),
			Remediation: "add acceptance criteria",
		})
	}
	if len(wi.Risks) == 0 {
		missing = append(missing, MissingRequirement{
			ID:          ReqRiskDeclared,
			Description: "no risks declared",
			Remediation: "declare at least one delivery risk",
		})
	}
	if wi.Confidence < MinConfidence {
		missing = append(missing, MissingRequirement{
			ID:          ReqConfidenceThreshold,
			Description: fmt.Sprintf("confidence score %.2f is below the %.2f threshold", wi.Confidence, MinConfidence),
			Remediation: "gather more discovery context to raise confidence",
		})
	}
	return missing
}

func (v *Validator) planningCriteria(wi *item.WorkItem, tasks []*item.Task) []MissingRequirement {
	var missing []MissingRequirement

	byType := make(map[item.TaskType]int)
	for _, t := range tasks {
		byType[t.Type]++
	}
	for _, required := range wi.Type.RequiredTaskTypes() {
		if byType[required] == 0 {
			missing = append(missing, MissingRequirement{
				ID:          ReqTaskCoverage,
				Description: fmt.Sprintf("no task of required type %q exists", required),
				Remediation: fmt.Sprintf("create a task of type %q", required),
			})
		}
	}

	for _, t := range tasks {
		if t.Effort <= 0 {
			missing = append(missing, MissingRequirement{
				ID:          ReqEffortEstimated,
				Description: fmt.Sprintf("task %s (%s) has no effort estimate", t.ID, t.Type),
				Remediation: fmt.Sprintf("estimate task %s at 1-%d points", t.ID, t.Type.EffortCeiling()),
			})
		}
	}

	if cycle := findDependencyCycle(tasks); cycle != nil {
		missing = append(missing, MissingRequirement{
			ID:          ReqDependencyAcyclic,
			Description: fmt.Sprintf("task dependency graph contains a cycle through %s", cycle[0]),
			Remediation: "break the dependency cycle between tasks",
		})
	}
	return missing
}

func (v *Validator) implementationCriteria(wi *item.WorkItem, tasks []*item.Task) []MissingRequirement {
	var missing []MissingRequirement

	required := make(map[item.TaskType]bool)
	for _, t := range wi.Type.RequiredTaskTypes() {
		required[t] = true
	}
	for _, t := range tasks {
		if len(required) > 0 && !required[t.Type] {
			continue
		}
		if t.State != item.StateDone {
			missing = append(missing, MissingRequirement{
				ID:          ReqRequiredTasksDone,
				Description: fmt.Sprintf("task %s (%s) is %s, not done", t.ID, t.Type, t.State),
				Remediation: fmt.Sprintf("complete task %s", t.ID),
			})
		}
	}
	return missing
}

func (v *Validator) reviewCriteria(wi *item.WorkItem) []MissingRequirement {
	var missing []MissingRequirement

	if pending := wi.UnverifiedCriteria(); len(pending) > 0 {
		missing = append(missing, MissingRequirement{
			ID:          ReqCriteriaVerified,
			Description: fmt.Sprintf("%d of %d acceptance criteria are not verified", len(pending), len(wi.AcceptanceCriteria)),
			Remediation: "verify every acceptance criterion individually",
		})
	}
	if open := wi.OpenDefects(); len(open) > 0 {
		missing = append(missing, MissingRequirement{
			ID:          ReqNoOpenDefects,
			Description: fmt.Sprintf("%d open defects attributed to the item", len(open)),
			Remediation: "close or reassign the open defects",
		})
	}
	return missing
}

func (v *Validator) operationsCriteria(wi *item.WorkItem) []MissingRequirement {
	// Presence only; the marker's contents are supplied and validated by
	// the release tooling.
	if wi.ReleaseRecord == "" {
		return []MissingRequirement{{
			ID:          ReqReleaseRecorded,
			Description: "no record of release is present",
			Remediation: "attach the deployment record for the release",
		}}
	}
	return nil
}

// findDependencyCycle returns a cycle in the task dependency graph as a
// list of task ids, or nil when the graph is acyclic. Edges to tasks
// outside the given set are ignored.
func findDependencyCycle(tasks []*item.Task) []string {
	adj := make(map[string][]string, len(tasks))
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if known[dep] {
				adj[t.ID] = append(adj[t.ID], dep)
			}
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		finished  = 2
	)
	color := make(map[string]int, len(tasks))
	var cycle []string

	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		color[id] = inStack
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch color[next] {
			case inStack:
				for i, s := range stack {
					if s == next {
						cycle = append([]string{}, stack[i:]...)
						return true
					}
				}
				cycle = append([]string{}, stack...)
				return true
			case unvisited:
				if visit(next, stack) {
					return true
				}
			}
		}
		color[id] = finished
		return false
	}

	// Iterate in the order tasks were given so the reported cycle is
	// deterministic.
	for _, t := range tasks {
		if color[t.ID] == unvisited {
			if visit(t.ID, nil) {
				return cycle
			}
		}
	}
	return nil
}
