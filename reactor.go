// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Reactor is a single-goroutine I/O readiness reactor. It owns a poller and
// a table of handles, waits for readiness, and dispatches to each handle's
// [Handler] in the order accept, connect, write, read.
//
// Handle table mutations (AddHandle, RemoveHandle, SetInterest and friends)
// must be made on the reactor goroutine, i.e. from handlers, timers or
// functions passed to Submit, or before Start. Changes are buffered, and
// applied to the poller by a sync pass, at most once per loop iteration.
//
// RequestStop, AwaitStopped, Close, Submit, Done, State, Stats, Load and
// LastError are safe to call from any goroutine.
type Reactor struct {
	// loop goroutine state

	handles map[*Handle]*registration
	byFD    map[int]*registration
	// dropped holds handles erased after a registration fault, until removed
	dropped map[*Handle]*registration
	poller  Poller
	events  []Event
	batch   []func()

	logger         *logiface.Logger[logiface.Event]
	timers         Timers
	loadMeter      LoadMeter
	context        PollerContext
	wakeupPolicy   WakeupPolicy
	rebuildLimiter *catrate.Limiter

	// wakeTarget is the poller Wake is forwarded to, nil once released
	wakeTarget Poller

	commands *queue.Queue
	wakeCh   chan struct{}
	stopped  chan struct{}
	lastErr  atomic.Pointer[error]

	stats statsCounters
	load  loadCounter
	state stateHolder

	loopGoroutineID atomic.Uint64

	wakeMu    sync.RWMutex
	commandMu sync.Mutex

	releaseOnce sync.Once
	releaseErr  error

	rebuildThreshold int
	suspicious       int

	dirty            bool
	confinementCheck bool
}

// New creates a Reactor, and its poller, which is released by AwaitStopped
// (or Close).
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	pollerContext := cfg.context
	if pollerContext == nil {
		pollerContext = NewContext()
	}

	p, err := pollerContext.NewPoller()
	if err != nil {
		return nil, err
	}

	return &Reactor{
		handles:          make(map[*Handle]*registration),
		byFD:             make(map[int]*registration),
		dropped:          make(map[*Handle]*registration),
		poller:           p,
		wakeTarget:       p,
		events:           make([]Event, cfg.eventBufferSize),
		logger:           cfg.logger,
		timers:           cfg.timers,
		loadMeter:        cfg.loadMeter,
		context:          pollerContext,
		wakeupPolicy:     cfg.wakeupPolicy,
		rebuildLimiter:   cfg.rebuildLimiter,
		rebuildThreshold: cfg.rebuildThreshold,
		confinementCheck: cfg.confinementCheck,
		commands:         queue.New(),
		wakeCh:           make(chan struct{}, 1),
		stopped:          make(chan struct{}),
	}, nil
}

// Start runs the loop on a new goroutine, locked to its OS thread.
func (r *Reactor) Start() error {
	if !r.state.TryTransition(StateIdle, StateRunning) {
		if r.state.Load() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	ready := make(chan struct{})
	go r.run(ready)
	// the loop goroutine must be known before mutations can be checked
	<-ready
	return nil
}

// RequestStop asks the loop to exit, waking it if blocked. It is idempotent,
// and does not wait, see AwaitStopped. Stopping a reactor that was never
// started moves it straight to StateStopped.
func (r *Reactor) RequestStop() {
	for {
		switch current := r.state.Load(); current {
		case StateIdle:
			if r.state.TryTransition(StateIdle, StateStopped) {
				close(r.stopped)
				r.logger.Debug().Log("reactor: stopped before start")
				return
			}
		case StateRunning:
			if r.state.TryTransition(StateRunning, StateStopping) {
				r.wake()
				return
			}
		default:
			return
		}
	}
}

// AwaitStopped blocks until the loop has exited, or ctx is done, then
// releases the poller, exactly once. It does not itself request a stop.
func (r *Reactor) AwaitStopped(ctx context.Context) error {
	select {
	case <-r.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.releaseOnce.Do(func() {
		r.wakeMu.Lock()
		p := r.wakeTarget
		r.wakeTarget = nil
		r.wakeMu.Unlock()
		if err := r.context.ClosePoller(p); err != nil && !errors.Is(err, ErrPollerClosed) {
			r.releaseErr = err
		}
	})
	return r.releaseErr
}

// Close requests a stop, then waits for it, releasing the poller.
func (r *Reactor) Close() error {
	r.RequestStop()
	return r.AwaitStopped(context.Background())
}

// Done returns a channel that is closed once the loop has exited.
func (r *Reactor) Done() <-chan struct{} {
	return r.stopped
}

// State returns the current lifecycle state.
func (r *Reactor) State() State {
	return r.state.Load()
}

// Stats returns a snapshot of the reactor's counters.
func (r *Reactor) Stats() Stats {
	return r.stats.snapshot()
}

// Load returns the number of handles added and not yet removed.
func (r *Reactor) Load() int {
	return r.load.Load()
}

// LastError returns the last transient poller fault, which wraps
// ErrInterrupted, or nil if there has been none.
func (r *Reactor) LastError() error {
	if p := r.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// wake interrupts the loop, whether it is blocked in the poller or idle.
func (r *Reactor) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
	r.wakeMu.RLock()
	defer r.wakeMu.RUnlock()
	if r.wakeTarget == nil {
		return
	}
	if err := r.wakeTarget.Wake(); err != nil && !errors.Is(err, ErrPollerClosed) {
		r.logger.Warning().
			Err(err).
			Log("reactor: failed to wake poller")
	}
}

// isLoopThread checks if the current goroutine is the loop goroutine.
func (r *Reactor) isLoopThread() bool {
	id := r.loopGoroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
