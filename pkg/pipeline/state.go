package pipeline

import (
	"github.com/serpent-os/pisi/pkg/pipeline/status"
)

// State of a source unit in a run
type State string

// Unit states
const (
	Pending       State = "pending"
	FilteredOut   State = "filtered-out"
	Resolving     State = "resolving"
	Unresolved    State = "unresolved"
	Extracting    State = "extracting"
	ExtractFailed State = "extract-failed"
	Materializing State = "materializing"
	Conflict      State = "conflict"
	Empty         State = "empty"
	Emitting      State = "emitting"
	EmitFailed    State = "emit-failed"
	Done          State = "done"
	Cancelled     State = "cancelled"
)

// transitions lists the states reachable from each non-terminal state
var transitions = map[State][]State{
	Pending:       {FilteredOut, Resolving, Cancelled},
	Resolving:     {Unresolved, Extracting, Cancelled},
	Extracting:    {ExtractFailed, Materializing, Cancelled},
	Materializing: {Conflict, Empty, Emitting, EmitFailed, Cancelled},
	Emitting:      {EmitFailed, Done, Cancelled},
}

// Terminal states end the processing of a unit
func (s State) Terminal() bool {
	_, more := transitions[s]
	return !more
}

// Failed tells if a terminal state counts as a failure of the run
func (s State) Failed() bool {
	switch s {
	case Unresolved, ExtractFailed, Conflict, EmitFailed, Cancelled:
		return true
	default:
		return false
	}
}

// Transition checks that a unit may move from one state to the next
func Transition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return status.ErrIllegalTransition.Wrapf("%s -> %s", from, to)
}

// States lists all states, in pipeline order
func States() []State {
	return []State{
		Pending, FilteredOut, Resolving, Unresolved, Extracting, ExtractFailed,
		Materializing, Conflict, Empty, Emitting, EmitFailed, Done, Cancelled,
	}
}
