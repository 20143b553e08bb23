package reactor

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of reactor counters, see Reactor.Stats.
type Stats struct {
	// Iterations is the number of completed loop iterations.
	Iterations uint64
	// Dispatched is the number of handler callbacks invoked.
	Dispatched uint64
	// HandlerPanics counts recovered panics, from handlers, submitted
	// functions, and Timers.RunDue.
	HandlerPanics uint64
	// SyncPasses counts sync passes, i.e. applications of pending
	// registration changes to the poller.
	SyncPasses uint64
	// RegistrationFaults counts records dropped because the channel was
	// closed or the poller rejected them.
	RegistrationFaults uint64
	// SpuriousWakeups counts zero-result waits judged suspicious.
	SpuriousWakeups uint64
	// Rebuilds counts poller replacements.
	Rebuilds uint64
	// TransientFaults counts poller wait errors.
	TransientFaults uint64
}

type statsCounters struct {
	iterations         atomic.Uint64
	dispatched         atomic.Uint64
	handlerPanics      atomic.Uint64
	syncPasses         atomic.Uint64
	registrationFaults atomic.Uint64
	spuriousWakeups    atomic.Uint64
	rebuilds           atomic.Uint64
	transientFaults    atomic.Uint64
}

func (x *statsCounters) snapshot() Stats {
	return Stats{
		Iterations:         x.iterations.Load(),
		Dispatched:         x.dispatched.Load(),
		HandlerPanics:      x.handlerPanics.Load(),
		SyncPasses:         x.syncPasses.Load(),
		RegistrationFaults: x.registrationFaults.Load(),
		SpuriousWakeups:    x.spuriousWakeups.Load(),
		Rebuilds:           x.rebuilds.Load(),
		TransientFaults:    x.transientFaults.Load(),
	}
}
