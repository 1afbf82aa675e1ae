package finetune

import "fmt"

// State is a job lifecycle state. States only ever move forward.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateValidating
	StateExecuting
	StateTerminal
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateValidating:
		return "validating"
	case StateExecuting:
		return "executing"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TransitionFunc observes lifecycle transitions.
type TransitionFunc func(from, to State)

// lifecycle tracks the state of a single job run.
type lifecycle struct {
	state   State
	observe TransitionFunc
}

func newLifecycle(observe TransitionFunc) *lifecycle {
	return &lifecycle{state: StateIdle, observe: observe}
}

// to moves to the next state. Moving backwards, sideways, or out of Terminal
// is a programming error.
func (l *lifecycle) to(next State) {
	if next <= l.state || l.state == StateTerminal {
		panic(fmt.Sprintf("finetune: illegal transition %s -> %s", l.state, next))
	}
	prev := l.state
	l.state = next
	if l.observe != nil {
		l.observe(prev, next)
	}
}
