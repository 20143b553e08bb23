package reactor

import (
	"fmt"
	"runtime"
	"time"
)

// run is the loop goroutine.
func (r *Reactor) run(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.loopGoroutineID.Store(getGoroutineID())
	close(ready)

	defer func() {
		r.logger.Debug().
			Int("count", len(r.handles)).
			Log("reactor: stopped")
		r.loopGoroutineID.Store(0)
		r.state.Store(StateStopped)
		close(r.stopped)
	}()

	r.logger.Debug().Log("reactor: started")

	for !r.state.Stopping() {
		r.iterate()
	}
}

// iterate performs a single loop iteration.
func (r *Reactor) iterate() {
	defer r.stats.iterations.Add(1)

	r.drainCommands()

	timeout := time.Duration(-1)
	if r.timers != nil {
		r.safeExecute("timer", r.timers.RunDue)
		timeout = r.timers.NextTimeout()
	}

	// apply changes made by commands and timers before blocking
	if r.dirty {
		r.syncPass()
	}

	if r.state.Stopping() {
		return
	}

	if len(r.byFD) == 0 {
		// nothing for the poller to report, and waiting on an empty set
		// would look like a spurious wake-up
		r.idle(timeout)
	} else {
		r.poll(timeout)
	}

	if r.state.Stopping() {
		return
	}

	if r.dirty {
		r.syncPass()
	}
}

// poll waits on the poller, then dispatches the ready events.
func (r *Reactor) poll(timeout time.Duration) {
	start := time.Now()
	n, woken, err := r.poller.Wait(r.events, timeout)
	if err != nil {
		r.transientFault(err)
		return
	}

	if n == 0 {
		if !woken {
			r.observeEmptyWait(timeout, time.Since(start))
		}
		return
	}

	r.suspicious = 0

	for i := 0; i < n; i++ {
		ev := r.events[i]
		reg, ok := r.byFD[ev.FD]
		if !ok {
			continue
		}
		for _, kind := range dispatchOrder {
			if ev.Ready&kind == 0 {
				continue
			}
			// a handler may cancel its own (or any other) handle mid-batch
			if reg.cancelled || reg.faulted {
				break
			}
			r.dispatch(reg, kind)
		}
	}
}

// dispatch invokes a single handler callback, recovering any panic.
func (r *Reactor) dispatch(reg *registration, kind Interest) {
	r.stats.dispatched.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			r.stats.handlerPanics.Add(1)
			r.logger.Err().
				Err(PanicError{Value: rec}).
				Int("fd", reg.fd).
				Stringer("kind", kind).
				Log("reactor: handler panicked")
		}
	}()
	invoke(reg.handler, kind)
}

// safeExecute runs fn, recovering any panic.
func (r *Reactor) safeExecute(category string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.stats.handlerPanics.Add(1)
			r.logger.Err().
				Err(PanicError{Value: rec}).
				Str("category", category).
				Log("reactor: callback panicked")
		}
	}()
	fn()
}

// transientFault handles a poller wait error by recording it, then
// rebuilding the poller, subject to the rebuild rate limits. The loop
// continues either way.
func (r *Reactor) transientFault(cause error) {
	r.stats.transientFaults.Add(1)
	err := fmt.Errorf("%w: %w", ErrInterrupted, cause)
	r.lastErr.Store(&err)

	r.logger.Err().
		Err(cause).
		Log("reactor: poller wait failed")

	backoff := transientFaultBackoff
	if next, ok := r.rebuildLimiter.Allow(rebuildCategory{}); !ok {
		r.logger.Warning().
			Time("next", next).
			Log("reactor: poller rebuild rate limited")
		backoff = time.Until(next)
	} else if r.rebuild("wait failed") {
		return
	}
	if backoff > 0 {
		r.idle(backoff)
	}
}

// idle blocks until the timeout elapses, or the reactor is woken. A negative
// timeout blocks until woken.
func (r *Reactor) idle(timeout time.Duration) {
	if timeout == 0 {
		return
	}
	if timeout < 0 {
		<-r.wakeCh
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.wakeCh:
	case <-timer.C:
	}
}
