package reactor

import (
	"time"
)

// WakeupPolicy reports whether a wait that returned no events, and was not
// woken, was suspicious. Timeout is the value passed to Poller.Wait (negative
// meaning block forever), and elapsed is the measured wall time.
type WakeupPolicy func(timeout, elapsed time.Duration) bool

// DefaultWakeupPolicy treats a zero-result return as suspicious if the wait
// was meant to block forever, or returned before half its timeout elapsed. A
// zero timeout is an intentional poll, and never suspicious.
func DefaultWakeupPolicy(timeout, elapsed time.Duration) bool {
	switch {
	case timeout == 0:
		return false
	case timeout < 0:
		return true
	default:
		return elapsed < timeout/2
	}
}

// rebuildCategory is the (only) catrate category used by the rebuild limiter,
// which bounds rebuilds caused by wait errors.
type rebuildCategory struct{}

// transientFaultBackoff is how long the loop idles after a wait error, when
// no replacement poller could be created.
const transientFaultBackoff = 50 * time.Millisecond

// observeEmptyWait feeds a zero-result, not woken, wait to the spurious
// wake-up detector, rebuilding the poller once enough suspicious returns
// have been seen in a row.
func (r *Reactor) observeEmptyWait(timeout, elapsed time.Duration) {
	if !r.wakeupPolicy(timeout, elapsed) {
		r.suspicious = 0
		return
	}

	r.stats.spuriousWakeups.Add(1)
	r.suspicious++
	if r.rebuildThreshold <= 0 || r.suspicious < r.rebuildThreshold {
		return
	}

	r.logger.Warning().
		Int("count", r.suspicious).
		Dur("timeout", timeout).
		Dur("elapsed", elapsed).
		Log("reactor: spurious wake-ups detected, rebuilding poller")

	r.suspicious = 0
	r.rebuild("spurious wake-ups")
}

// rebuild replaces the poller with a fresh one, re-registering every record
// with the interest last applied. On failure the old poller is kept.
func (r *Reactor) rebuild(reason string) bool {
	p, err := r.context.NewPoller()
	if err != nil {
		r.logger.Err().
			Err(err).
			Str("reason", reason).
			Log("reactor: failed to create replacement poller")
		return false
	}

	for h, reg := range r.handles {
		if !reg.registered {
			continue
		}
		if reg.cancelled {
			// never given to the new poller, erased by the next sync pass
			delete(r.byFD, reg.fd)
			reg.registered = false
			continue
		}
		if err := p.Register(reg.fd, reg.applied); err != nil {
			delete(r.byFD, reg.fd)
			reg.registered = false
			r.fault(h, reg, err)
		}
	}

	old := r.swapPoller(p)
	if err := r.context.ClosePoller(old); err != nil {
		r.logger.Debug().
			Err(err).
			Log("reactor: failed to close retired poller")
	}

	r.stats.rebuilds.Add(1)
	r.suspicious = 0
	r.dirty = true

	r.logger.Info().
		Str("reason", reason).
		Int("count", len(r.byFD)).
		Log("reactor: poller rebuilt")

	return true
}

// swapPoller installs p as both the loop's poller and the wake target,
// returning the previous poller.
func (r *Reactor) swapPoller(p Poller) Poller {
	r.wakeMu.Lock()
	old := r.poller
	r.poller = p
	r.wakeTarget = p
	r.wakeMu.Unlock()
	return old
}
