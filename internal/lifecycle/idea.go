package lifecycle

import (
	"fmt"

	"github.com/fyrsmithlabs/trackd/internal/item"
)

// IllegalIdeaTransitionError rejects an idea transition with the exact
// reason.
type IllegalIdeaTransitionError struct {
	From   item.IdeaState
	To     item.IdeaState
	Reason string
}

func (e *IllegalIdeaTransitionError) Error() string {
	return fmt.Sprintf("illegal idea transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// TransitionIdea decides whether an idea may move from current to target.
// The idea machine is linear (idea → research → design → accepted →
// converted) with rejection available from any non-terminal state.
func TransitionIdea(current, target item.IdeaState) error {
	reject := func(reason string) error {
		return &IllegalIdeaTransitionError{From: current, To: target, Reason: reason}
	}

	if !current.Valid() {
		panic("lifecycle: invalid current idea state " + string(current))
	}
	if !target.Valid() {
		return reject(fmt.Sprintf("unknown idea state %q", target))
	}

	if current.Terminal() {
		return reject(fmt.Sprintf("%s is terminal; the idea is immutable", current))
	}

	if target == item.IdeaRejected {
		return nil
	}

	path := item.IdeaPath()
	from, to := -1, -1
	for i, s := range path {
		if s == current {
			from = i
		}
		if s == target {
			to = i
		}
	}
	switch {
	case to == -1:
		return reject(fmt.Sprintf("%s is not on the idea path", target))
	case to == from:
		return reject(fmt.Sprintf("already in state %s", target))
	case to < from:
		return reject(fmt.Sprintf("cannot move backwards from %s to %s", current, target))
	case to > from+1:
		return reject(fmt.Sprintf("cannot skip %s", path[from+1]))
	}

	// Conversion is performed by the coordinator, which creates the work
	// item atomically with this transition; the machine only rules on
	// legality.
	return nil
}
