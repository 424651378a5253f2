package connection

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("connection: invalid state transition")

// State of the one connection a session may own.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Closed only goes back to Idle through an explicit reconnect.
var transitions = map[State][]State{
	Idle:       {Connecting},
	Connecting: {Open, Closed},
	Open:       {Closed},
	Closed:     {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
