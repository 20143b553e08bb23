package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("reactor: already started")

	// ErrStopped is returned when operations are attempted on a stopping or
	// stopped reactor.
	ErrStopped = errors.New("reactor: stopped")

	// ErrInterrupted wraps the cause of the last transient multiplexer fault,
	// see Reactor.LastError.
	ErrInterrupted = errors.New("reactor: multiplexer wait interrupted")

	// ErrChannelClosed indicates a channel can no longer be registered.
	ErrChannelClosed = errors.New("reactor: channel closed")

	// ErrPollerClosed is returned by poller methods after Close.
	ErrPollerClosed = errors.New("reactor: poller closed")

	// ErrUnsupportedPlatform is returned by NewPoller on platforms without a
	// readiness multiplexer implementation.
	ErrUnsupportedPlatform = errors.New("reactor: platform not supported")
)

// Programming errors, used as panic values.
var (
	// ErrUnknownHandle is the panic value for operations on a handle that is
	// nil, belongs to another reactor, or has been removed.
	ErrUnknownHandle = errors.New("reactor: unknown handle")

	// ErrNotLoopGoroutine is the panic value for a mutation issued from a
	// goroutine other than the running reactor's, see WithConfinementCheck.
	ErrNotLoopGoroutine = errors.New("reactor: mutation from outside the reactor goroutine")

	// ErrNilChannel is the panic value for AddHandle with a nil channel.
	ErrNilChannel = errors.New("reactor: nil channel")

	// ErrNilHandler is the panic value for AddHandle with a nil handler.
	ErrNilHandler = errors.New("reactor: nil handler")
)

// PanicError wraps a value recovered from a panicking handler, timer or
// submitted function.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("reactor: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
