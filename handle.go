package reactor

import (
	"fmt"
)

// Handle identifies a channel added to a Reactor. Handles are compared by
// identity, and are only valid for the reactor that issued them.
type Handle struct {
	channel Channel
	reactor *Reactor
}

// Channel returns the channel the handle was created for.
func (h *Handle) Channel() Channel {
	return h.channel
}

func (h *Handle) String() string {
	if h == nil {
		return "Handle(nil)"
	}
	return fmt.Sprintf("Handle(%p)", h)
}

// registration is the per-handle state owned by the reactor goroutine.
type registration struct {
	handler Handler
	// interest is the desired mask, applied to the poller by the sync pass
	interest Interest
	// applied is the mask last given to the poller, valid if registered
	applied Interest
	fd      int
	// registered indicates the fd is in the poller, and in Reactor.byFD
	registered bool
	// cancelled is set by RemoveHandle, and never cleared
	cancelled bool
	// faulted records have been moved from the handle table to dropped
	faulted bool
}

// AddHandle adds ch to the reactor with an empty interest, returning the
// handle used to manage it. The channel is registered with the poller by the
// next sync pass.
//
// Must be called from the reactor goroutine, or before Start.
func (r *Reactor) AddHandle(ch Channel, handler Handler) *Handle {
	if ch == nil {
		panic(ErrNilChannel)
	}
	if handler == nil {
		panic(ErrNilHandler)
	}
	r.checkConfined()

	h := &Handle{channel: ch, reactor: r}
	r.handles[h] = &registration{handler: handler, fd: -1}
	r.dirty = true
	r.adjustLoad(1)
	return h
}

// RemoveHandle cancels the handle. No further callbacks are made for it,
// even for events already returned by the current wait, and the channel is
// unregistered by the next sync pass. A handle already dropped after a
// registration fault is forgotten. Removing a handle twice panics with
// ErrUnknownHandle.
//
// Must be called from the reactor goroutine, or before Start.
func (r *Reactor) RemoveHandle(h *Handle) {
	reg := r.lookup(h)
	if reg.cancelled {
		panic(ErrUnknownHandle)
	}
	reg.cancelled = true
	if reg.faulted {
		// load was released when it was dropped
		delete(r.dropped, h)
		return
	}
	r.dirty = true
	r.adjustLoad(-1)
}

// SetInterest adds kinds to the handle's interest. Idempotent.
func (r *Reactor) SetInterest(h *Handle, kinds Interest) {
	reg := r.lookup(h)
	reg.interest |= kinds & interestAll
	r.dirty = true
}

// ResetInterest removes kinds from the handle's interest. Idempotent.
func (r *Reactor) ResetInterest(h *Handle, kinds Interest) {
	reg := r.lookup(h)
	reg.interest &^= kinds
	r.dirty = true
}

// Interest returns the handle's desired interest, which may not yet be
// applied to the poller.
func (r *Reactor) Interest(h *Handle) Interest {
	return r.lookup(h).interest
}

func (r *Reactor) SetPollAccept(h *Handle)  { r.SetInterest(h, InterestAccept) }
func (r *Reactor) SetPollConnect(h *Handle) { r.SetInterest(h, InterestConnect) }
func (r *Reactor) SetPollIn(h *Handle)      { r.SetInterest(h, InterestRead) }
func (r *Reactor) ResetPollIn(h *Handle)    { r.ResetInterest(h, InterestRead) }
func (r *Reactor) SetPollOut(h *Handle)     { r.SetInterest(h, InterestWrite) }
func (r *Reactor) ResetPollOut(h *Handle)   { r.ResetInterest(h, InterestWrite) }

func (r *Reactor) lookup(h *Handle) *registration {
	if h == nil || h.reactor != r {
		panic(ErrUnknownHandle)
	}
	r.checkConfined()
	if reg, ok := r.handles[h]; ok {
		return reg
	}
	// dropped handles accept mutations, which have no effect
	if reg, ok := r.dropped[h]; ok {
		return reg
	}
	panic(ErrUnknownHandle)
}

// checkConfined panics if confinement checking is enabled, the loop is
// running, and the caller is not the loop goroutine.
func (r *Reactor) checkConfined() {
	if !r.confinementCheck {
		return
	}
	if r.loopGoroutineID.Load() != 0 && !r.isLoopThread() {
		panic(ErrNotLoopGoroutine)
	}
}

func (r *Reactor) adjustLoad(delta int) {
	r.load.AdjustLoad(delta)
	if r.loadMeter != nil {
		r.loadMeter.AdjustLoad(delta)
	}
}

// syncPass applies the handle table to the poller: cancelled records are
// unregistered and erased, then live records are registered or modified as
// needed. Records whose channel is closed, or that the poller rejects, are
// faulted, and erased as if cancelled.
func (r *Reactor) syncPass() {
	r.dirty = false
	r.stats.syncPasses.Add(1)

	// cancelled first, so their fds are free for reuse by new records
	for h, reg := range r.handles {
		if reg.cancelled {
			r.unregister(reg)
			delete(r.handles, h)
		}
	}

	for h, reg := range r.handles {
		r.apply(h, reg)
	}
}

func (r *Reactor) apply(h *Handle, reg *registration) {
	fd, err := h.channel.FD()
	if err != nil {
		r.unregister(reg)
		r.fault(h, reg, err)
		return
	}

	if !reg.registered {
		if other, ok := r.byFD[fd]; ok && other != reg {
			r.fault(h, reg, fmt.Errorf("reactor: fd %d already registered by another handle", fd))
			return
		}
		reg.fd = fd
		if err := r.poller.Register(fd, reg.interest); err != nil {
			r.fault(h, reg, err)
			return
		}
		reg.registered = true
		reg.applied = reg.interest
		r.byFD[fd] = reg
		return
	}

	if fd != reg.fd {
		r.unregister(reg)
		r.fault(h, reg, fmt.Errorf("%w: fd changed from %d to %d", ErrChannelClosed, reg.fd, fd))
		return
	}

	if reg.interest == reg.applied {
		return
	}
	if err := r.poller.Modify(fd, reg.interest); err != nil {
		r.unregister(reg)
		r.fault(h, reg, err)
		return
	}
	reg.applied = reg.interest
}

// unregister removes the record from the poller, if it was registered. The
// fd may already be closed, so failures are only logged.
func (r *Reactor) unregister(reg *registration) {
	if !reg.registered {
		return
	}
	reg.registered = false
	delete(r.byFD, reg.fd)
	if err := r.poller.Unregister(reg.fd); err != nil {
		r.logger.Debug().
			Err(err).
			Int("fd", reg.fd).
			Log("reactor: unregister failed")
	}
}

// fault erases a record that could not be applied to the poller. The caller
// must have already removed it from the poller.
func (r *Reactor) fault(h *Handle, reg *registration, err error) {
	reg.faulted = true
	delete(r.handles, h)
	r.dropped[h] = reg
	r.adjustLoad(-1)
	r.stats.registrationFaults.Add(1)
	r.logger.Warning().
		Err(err).
		Int("fd", reg.fd).
		Stringer("handle", h).
		Log("reactor: dropping handle after registration fault")
}
