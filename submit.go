package reactor

// Submit queues fn to run on the reactor goroutine, at the start of the next
// loop iteration, waking the reactor if necessary. Functions run in
// submission order, and may mutate the handle table. Returns ErrStopped once
// a stop has been requested, after which queued functions may not run.
//
// Submit is safe to call from any goroutine, including before Start.
func (r *Reactor) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	r.commandMu.Lock()
	if r.state.Stopping() {
		r.commandMu.Unlock()
		return ErrStopped
	}
	r.commands.Add(fn)
	r.commandMu.Unlock()
	r.wake()
	return nil
}

// drainCommands runs every function queued before the call. Functions
// submitted while draining run on the next iteration.
func (r *Reactor) drainCommands() {
	r.commandMu.Lock()
	for r.commands.Length() != 0 {
		r.batch = append(r.batch, r.commands.Remove().(func()))
	}
	r.commandMu.Unlock()

	for i, fn := range r.batch {
		r.batch[i] = nil
		r.safeExecute("command", fn)
	}
	r.batch = r.batch[:0]
}
