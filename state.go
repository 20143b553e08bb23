package reactor

import (
	"sync/atomic"
)

// State represents the lifecycle state of a Reactor.
//
// State Machine:
//
//	StateIdle     → StateRunning   [Start()]
//	StateIdle     → StateStopped   [RequestStop() before Start()]
//	StateRunning  → StateStopping  [RequestStop()]
//	StateStopping → StateStopped   [loop exit]
//	StateStopped  → (terminal)
//
// Use TryTransition (CAS) for every transition except the final store of
// StateStopped, which only the loop goroutine (or RequestStop, for a reactor
// that never started) performs.
type State uint32

const (
	// StateIdle indicates the reactor has been created but not started.
	StateIdle State = iota
	// StateRunning indicates the loop goroutine is running.
	StateRunning
	// StateStopping indicates a stop has been requested but the loop has not
	// yet exited.
	StateStopping
	// StateStopped indicates the loop has exited (or never ran).
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// stateHolder is a lock-free state machine.
type stateHolder struct {
	v atomic.Uint32
}

// Load returns the current state atomically.
func (s *stateHolder) Load() State {
	return State(s.v.Load())
}

// Store atomically stores a new state, without validation.
func (s *stateHolder) Store(state State) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *stateHolder) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// Stopping reports whether a stop has been requested (or completed).
func (s *stateHolder) Stopping() bool {
	return s.Load() >= StateStopping
}
