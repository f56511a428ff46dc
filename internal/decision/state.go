// Package decision ranks candidate transition actions against learned
// preference scores and commits exactly one action per transition window
// before its deadline. Each window is an independent state machine; the
// only state carried across windows lives in the score store.
package decision

import "fmt"

// State is the per-window decision lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateCommitted  State = "committed"
	StateExecuted   State = "executed"
	StateExpired    State = "expired"
)

// Event drives window state transitions.
type Event string

const (
	EventOpen     Event = "open"     // window's OpenAt reached
	EventCommit   Event = "commit"   // action selected before the deadline
	EventDeadline Event = "deadline" // DeadlineAt passed without commitment
	EventExecuted Event = "executed" // transport reported completion
)

// Transition is the pure (state, event) -> state function. Invalid pairs
// are errors; the caller decides whether they are bugs or races.
func Transition(s State, ev Event) (State, error) {
	switch {
	case s == StateIdle && ev == EventOpen:
		return StateEvaluating, nil
	case s == StateEvaluating && ev == EventCommit:
		return StateCommitted, nil
	case s == StateEvaluating && ev == EventDeadline:
		return StateExpired, nil
	case s == StateCommitted && ev == EventExecuted:
		return StateExecuted, nil
	default:
		return s, fmt.Errorf("invalid transition: %s on %s", ev, s)
	}
}

// Terminal reports whether a window state accepts no further events.
func Terminal(s State) bool {
	return s == StateExecuted || s == StateExpired
}
