// Package reactor implements a single-goroutine I/O readiness reactor.
//
// # Architecture
//
// A [Reactor] owns a readiness multiplexer ([Poller]) and a table of
// [Handle] values, each pairing a [Channel] (anything with a file
// descriptor) with a [Handler]. One goroutine, locked to its OS thread, runs
// the loop:
//
//  1. Functions queued by [Reactor.Submit] are run.
//  2. Due timers are run, and the wait timeout is taken from [Timers].
//  3. Pending registration changes are applied to the poller (the sync pass).
//  4. The poller is waited on, and each ready handle is dispatched to, in the
//     order accept, connect, write, read.
//  5. Registration changes made by the handlers are applied.
//
// Registration changes are buffered: AddHandle, RemoveHandle and the
// interest setters only update the handle table and mark it dirty. A removed
// handle is never dispatched to again, even for events already returned by
// the current wait.
//
// # Platform Support
//
//   - Linux: epoll (level-triggered), with an eventfd for wake-ups
//   - macOS: kqueue, with a self-pipe for wake-ups
//
// Other platforms may supply a [Poller] via [WithContext].
//
// # Spurious Wake-ups
//
// Some multiplexers are known to return early with no events, repeatedly.
// The reactor counts consecutive suspicious returns, per the [WakeupPolicy],
// and replaces the poller once [DefaultRebuildThreshold] is reached,
// re-registering every handle. Wait errors also trigger a rebuild, and are
// reported by [Reactor.LastError]. Rebuilds after wait errors are rate
// limited, see [WithRebuildRateLimits].
//
// # Thread Safety
//
// Handle table mutations must be made on the reactor goroutine, or before
// [Reactor.Start]. Use [Reactor.Submit] from other goroutines.
// [WithConfinementCheck] enables a runtime check.
//
// # Usage
//
//	r, err := reactor.New(reactor.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h := r.AddHandle(reactor.FD(fd), reactor.HandlerFuncs{
//	    Readable: func() { /* read from fd */ },
//	})
//	r.SetPollIn(h)
//	if err := r.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
package reactor
