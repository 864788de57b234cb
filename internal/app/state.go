package app

import "fmt"

// State is the lifecycle of one process run.
type State int

const (
	Idle State = iota
	Initializing
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) canMoveTo(next State) bool {
	switch s {
	case Idle:
		return next == Initializing
	case Initializing:
		return next == Running || next == Terminated
	case Running:
		return next == Terminated
	default:
		return false
	}
}

func (e *Entry) transition(next State) error {
	prev := e.state
	if !prev.canMoveTo(next) {
		return fmt.Errorf("invalid transition %s -> %s", prev, next)
	}
	e.state = next
	if e.OnTransition != nil {
		e.OnTransition(prev, next)
	}
	e.Logger.Debug("state", "from", prev, "to", next)
	return nil
}
