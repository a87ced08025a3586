package submit

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is a step of the submission state machine.
type State int

const (
	Unproposed State = iota
	Proposed
	Endorsed
	Submitted
	AwaitingCommit
	CommittedState
	Rejected
	TimedOutState
)

var stateNames = map[State]string{
	Unproposed:     "UNPROPOSED",
	Proposed:       "PROPOSED",
	Endorsed:       "ENDORSED",
	Submitted:      "SUBMITTED",
	AwaitingCommit: "AWAITING_COMMIT",
	CommittedState: "COMMITTED",
	Rejected:       "REJECTED",
	TimedOutState:  "TIMED_OUT",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitions lists every legal move. The graph is acyclic, so no state is
// ever revisited.
var transitions = map[State][]State{
	Unproposed:     {Proposed},
	Proposed:       {Endorsed, Rejected},
	Endorsed:       {Submitted, Rejected},
	Submitted:      {AwaitingCommit, Rejected},
	AwaitingCommit: {CommittedState, Rejected, TimedOutState},
	CommittedState: nil,
	Rejected:       nil,
	TimedOutState:  nil,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type stateMachine struct {
	current State
	history []State
}

// advance moves to the next state. An illegal move leaves the machine
// where it is.
func (m *stateMachine) advance(to State) error {
	if !CanTransition(m.current, to) {
		return errors.Errorf("illegal submission state transition %s -> %s", m.current, to)
	}
	m.history = append(m.history, m.current)
	m.current = to
	return nil
}
