package reactor

import (
	"time"
)

// Poller is the readiness multiplexer adapter, a thin wrapper around the OS
// readiness facility (epoll, kqueue).
//
// All methods except Wake are called only from the reactor goroutine. Wake
// must be safe to call from any goroutine, concurrently with Wait.
type Poller interface {
	// Register starts watching fd for the given interest. The interest may be
	// empty.
	Register(fd int, interest Interest) error

	// Modify replaces the interest of a registered fd.
	Modify(fd int, interest Interest) error

	// Unregister stops watching fd.
	Unregister(fd int) error

	// Wait blocks until at least one registered fd is ready, the timeout
	// elapses, or the poller is woken. A negative timeout blocks forever, and
	// a zero timeout polls. The ready fds are written to events, with
	// Event.Ready masked to the interest each fd is registered with. Woken
	// reports a known cause for an early return, i.e. Wake or EINTR.
	Wait(events []Event, timeout time.Duration) (n int, woken bool, err error)

	// Wake interrupts an in-progress (or the next) Wait.
	Wake() error

	// Close releases the OS resources.
	Close() error
}

// Event is a single readiness notification.
type Event struct {
	FD    int
	Ready Interest
}

// timeoutMillis converts a Wait timeout to the millisecond form taken by the
// OS facilities, rounding positive sub-millisecond values up so they don't
// degrade into polling.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > 1<<31-1 {
		return 1<<31 - 1
	}
	return int(ms)
}

// readyFor maps the OS-level in/out/error readiness to the registered
// interest.
func readyFor(interest Interest, in, out, failed bool) Interest {
	if failed {
		return interest
	}
	var ready Interest
	if in {
		ready |= interest.inbound()
	}
	if out {
		ready |= interest.outbound()
	}
	return ready
}
