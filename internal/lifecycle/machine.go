package lifecycle

import (
	"fmt"

	"github.com/fyrsmithlabs/trackd/internal/item"
)

// IllegalTransitionError rejects a requested transition with the exact
// reason it is not legal. It is never retried automatically; a different
// request is required.
type IllegalTransitionError struct {
	From   item.State
	To     item.State
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// Snapshot is the slice of entity state the machine needs to decide a
// transition. It carries no identity and the machine never mutates it.
type Snapshot struct {
	State item.State

	// Held is the core state recorded when the entity was blocked.
	// Empty unless State is blocked.
	Held item.State

	// UnresolvedBlockers is the count of open blockers on the entity.
	UnresolvedBlockers int
}

// Outcome is the state resulting from a legal transition.
type Outcome struct {
	State item.State

	// Held is the state to record as held-before-blocking. Empty unless
	// State is blocked.
	Held item.State
}

// Transition decides whether the snapshot may move to target and returns
// the resulting state. The decision is pure; callers persist the outcome.
func Transition(s Snapshot, target item.State) (Outcome, error) {
	reject := func(reason string) (Outcome, error) {
		return Outcome{}, &IllegalTransitionError{From: s.State, To: target, Reason: reason}
	}

	if !s.State.Valid() {
		// Current state comes from storage, not user input. A corrupt
		// value is a programmer error.
		panic("lifecycle: invalid current state " + string(s.State))
	}
	if !target.Valid() {
		return reject(fmt.Sprintf("unknown state %q", target))
	}

	if s.State.Terminal() {
		return reject(fmt.Sprintf("%s is terminal and admits no transitions", s.State))
	}

	// Cancellation is accepted from any non-terminal state, including
	// blocked. It is permanent.
	if target == item.StateCancelled {
		return Outcome{State: item.StateCancelled}, nil
	}

	// Blocking is accepted unconditionally from any core state and
	// records the position to resume to.
	if target == item.StateBlocked {
		if s.State == item.StateBlocked {
			return reject("already blocked")
		}
		return Outcome{State: item.StateBlocked, Held: s.State}, nil
	}

	// A blocked entity may only resume to the state it held before
	// blocking (or be cancelled, handled above).
	if s.State == item.StateBlocked {
		if target != s.Held {
			return reject(fmt.Sprintf("blocked entity can only resume to %s or be cancelled", s.Held))
		}
		if err := blockerCheck(s, target); err != nil {
			return Outcome{}, err
		}
		return Outcome{State: target}, nil
	}

	// Core path: strictly sequential, one step at a time.
	from, to := coreIndex(s.State), coreIndex(target)
	switch {
	case from == to:
		return reject(fmt.Sprintf("already in state %s", target))
	case to < from:
		return reject(fmt.Sprintf("cannot move backwards from %s to %s", s.State, target))
	case to > from+1:
		skipped := item.CoreStates()[from+1]
		return reject(fmt.Sprintf("cannot skip %s", skipped))
	}

	if err := blockerCheck(s, target); err != nil {
		return Outcome{}, err
	}
	return Outcome{State: target}, nil
}

// blockerCheck rejects entry into active or done while blockers remain
// unresolved.
func blockerCheck(s Snapshot, target item.State) error {
	if s.UnresolvedBlockers == 0 {
		return nil
	}
	if target == item.StateActive || target == item.StateDone {
		return &IllegalTransitionError{
			From:   s.State,
			To:     target,
			Reason: fmt.Sprintf("cannot advance to %s while %d blockers are unresolved", target, s.UnresolvedBlockers),
		}
	}
	return nil
}

// coreIndex returns the position of s on the core path. The caller has
// already excluded administrative states.
func coreIndex(s item.State) int {
	for i, c := range item.CoreStates() {
		if c == s {
			return i
		}
	}
	panic("lifecycle: state " + string(s) + " is not on the core path")
}

// NextCoreState returns the state following s on the core path, or false
// when s is the end of the path or an administrative state.
func NextCoreState(s item.State) (item.State, bool) {
	if s.Administrative() {
		return "", false
	}
	states := item.CoreStates()
	for i, c := range states {
		if c == s && i+1 < len(states) {
			return states[i+1], true
		}
	}
	return "", false
}
