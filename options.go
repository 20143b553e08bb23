// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"fmt"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

const (
	// DefaultRebuildThreshold is the number of consecutive suspicious
	// zero-result waits that trigger a poller rebuild.
	DefaultRebuildThreshold = 10

	// DefaultEventBufferSize is the maximum number of readiness events
	// returned by a single wait.
	DefaultEventBufferSize = 256
)

// DefaultRebuildRateLimits bounds poller rebuild churn caused by wait errors,
// see WithRebuildRateLimits.
func DefaultRebuildRateLimits() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 10,
		time.Minute: 100,
	}
}

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	logger           *logiface.Logger[logiface.Event]
	timers           Timers
	loadMeter        LoadMeter
	context          PollerContext
	wakeupPolicy     WakeupPolicy
	rebuildLimiter   *catrate.Limiter
	rebuildThreshold int
	eventBufferSize  int
	confinementCheck bool
	rebuildRatesSet  bool
}

// Option configures a Reactor instance.
type Option interface {
	applyReactor(*reactorOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyReactorFunc func(*reactorOptions) error
}

func (o *optionImpl) applyReactor(opts *reactorOptions) error {
	return o.applyReactorFunc(opts)
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTimers sets the due-timer collaborator, consulted once per iteration
// for the wait timeout. Without one, the reactor blocks until readiness or a
// wake-up.
func WithTimers(timers Timers) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.timers = timers
		return nil
	}}
}

// WithLoadMeter sets a meter to receive load adjustments, in addition to the
// built-in count reported by Reactor.Load.
func WithLoadMeter(meter LoadMeter) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.loadMeter = meter
		return nil
	}}
}

// WithContext sets the context used to create and release pollers. Defaults
// to a new [Context] per reactor.
func WithContext(ctx PollerContext) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.context = ctx
		return nil
	}}
}

// WithRebuildThreshold sets the number of consecutive suspicious zero-result
// waits that trigger a poller rebuild. Zero disables rebuilding.
func WithRebuildThreshold(n int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if n < 0 {
			return fmt.Errorf("reactor: invalid rebuild threshold: %d", n)
		}
		opts.rebuildThreshold = n
		return nil
	}}
}

// WithWakeupPolicy sets the policy judging whether a zero-result wait was
// suspicious. A nil policy restores DefaultWakeupPolicy.
func WithWakeupPolicy(policy WakeupPolicy) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.wakeupPolicy = policy
		return nil
	}}
}

// WithRebuildRateLimits bounds how often the poller may be rebuilt in
// response to wait errors, as a map of window to maximum count, per
// github.com/joeycumines/go-catrate. An empty map disables the limit.
// Rebuilds caused by spurious wake-ups are bounded by the rebuild threshold
// alone.
func WithRebuildRateLimits(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		limiter, err := newRebuildLimiter(rates)
		if err != nil {
			return err
		}
		opts.rebuildLimiter = limiter
		opts.rebuildRatesSet = true
		return nil
	}}
}

// WithConfinementCheck enables panicking with ErrNotLoopGoroutine when a
// handle table mutation is made from a goroutine other than the running
// reactor's. It costs a stack capture per mutation.
func WithConfinementCheck(enabled bool) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		opts.confinementCheck = enabled
		return nil
	}}
}

// WithEventBufferSize sets the maximum number of readiness events returned
// by a single wait.
func WithEventBufferSize(n int) Option {
	return &optionImpl{func(opts *reactorOptions) error {
		if n <= 0 {
			return fmt.Errorf("reactor: invalid event buffer size: %d", n)
		}
		opts.eventBufferSize = n
		return nil
	}}
}

// resolveOptions applies Option instances to reactorOptions.
func resolveOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		rebuildThreshold: DefaultRebuildThreshold,
		eventBufferSize:  DefaultEventBufferSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.wakeupPolicy == nil {
		cfg.wakeupPolicy = DefaultWakeupPolicy
	}
	if !cfg.rebuildRatesSet {
		cfg.rebuildLimiter, _ = newRebuildLimiter(DefaultRebuildRateLimits())
	}
	return cfg, nil
}

// newRebuildLimiter converts the panic raised by catrate for invalid rates
// into an error. A nil limiter allows everything.
func newRebuildLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("reactor: invalid rebuild rate limits: %w", e)
			} else {
				err = errors.New("reactor: invalid rebuild rate limits")
			}
			limiter = nil
		}
	}()
	return catrate.NewLimiter(rates), nil
}
