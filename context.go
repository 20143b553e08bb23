package reactor

import (
	"errors"
	"sync"
)

// PollerContext creates and destroys pollers on behalf of a Reactor, both at
// construction and when rebuilding after spurious wake-ups.
type PollerContext interface {
	NewPoller() (Poller, error)
	ClosePoller(p Poller) error
}

// Context is the default PollerContext. It creates platform pollers and
// tracks those still open, so that they can be released together, e.g. when
// several reactors share one Context.
//
// Context is safe for concurrent use. The zero value is ready to use.
type Context struct {
	// New overrides NewPoller, for testing or alternate multiplexers.
	New func() (Poller, error)

	open   map[Poller]struct{}
	mu     sync.Mutex
	closed bool
}

var _ PollerContext = (*Context)(nil)

// NewContext returns a Context using the platform poller.
func NewContext() *Context {
	return &Context{}
}

// NewPoller creates and tracks a poller.
func (x *Context) NewPoller() (Poller, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil, ErrPollerClosed
	}
	newPoller := x.New
	if newPoller == nil {
		newPoller = NewPoller
	}
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	if x.open == nil {
		x.open = make(map[Poller]struct{})
	}
	x.open[p] = struct{}{}
	return p, nil
}

// ClosePoller closes and forgets a poller created by this Context.
func (x *Context) ClosePoller(p Poller) error {
	if p == nil {
		return nil
	}
	x.mu.Lock()
	delete(x.open, p)
	x.mu.Unlock()
	return p.Close()
}

// Open returns the number of pollers created but not yet closed.
func (x *Context) Open() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.open)
}

// Close closes every poller still open, and prevents new ones being created.
func (x *Context) Close() error {
	x.mu.Lock()
	open := x.open
	x.open = nil
	x.closed = true
	x.mu.Unlock()

	var errs []error
	for p := range open {
		if err := p.Close(); err != nil && !errors.Is(err, ErrPollerClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
