package reactor

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// fakeWait is a scripted result for fakePoller.Wait.
type fakeWait struct {
	err    error
	events []Event
	woken  bool
}

// fakePoller is a scriptable Poller. Wait returns the next scripted result,
// or blocks until one is pushed, the poller is woken, or the timeout elapses.
type fakePoller struct {
	interest    map[int]Interest
	results     chan fakeWait
	woken       chan struct{}
	registerErr map[int]error
	modifyErr   map[int]error
	ops         []string
	timeouts    []time.Duration
	id          int
	mu          sync.Mutex
	wakes       atomic.Int64
	closes      atomic.Int64
	closed      atomic.Bool
}

var _ Poller = (*fakePoller)(nil)

func newFakePoller(id int) *fakePoller {
	return &fakePoller{
		id:          id,
		interest:    make(map[int]Interest),
		results:     make(chan fakeWait, 1024),
		woken:       make(chan struct{}, 1),
		registerErr: make(map[int]error),
		modifyErr:   make(map[int]error),
	}
}

func (p *fakePoller) push(results ...fakeWait) {
	for _, res := range results {
		p.results <- res
	}
}

func (p *fakePoller) Register(fd int, interest Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.registerErr[fd]; err != nil {
		return err
	}
	if _, ok := p.interest[fd]; ok {
		return fmt.Errorf("fake: fd %d already registered", fd)
	}
	p.interest[fd] = interest
	p.ops = append(p.ops, fmt.Sprintf("register %d %s", fd, interest))
	return nil
}

func (p *fakePoller) Modify(fd int, interest Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := p.modifyErr[fd]; err != nil {
		return err
	}
	if _, ok := p.interest[fd]; !ok {
		return fmt.Errorf("fake: fd %d not registered", fd)
	}
	p.interest[fd] = interest
	p.ops = append(p.ops, fmt.Sprintf("modify %d %s", fd, interest))
	return nil
}

func (p *fakePoller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return fmt.Errorf("fake: fd %d not registered", fd)
	}
	delete(p.interest, fd)
	p.ops = append(p.ops, fmt.Sprintf("unregister %d", fd))
	return nil
}

func (p *fakePoller) Wait(events []Event, timeout time.Duration) (int, bool, error) {
	if p.closed.Load() {
		return 0, false, ErrPollerClosed
	}
	p.mu.Lock()
	p.timeouts = append(p.timeouts, timeout)
	p.mu.Unlock()

	select {
	case res := <-p.results:
		return p.deliver(events, res)
	default:
	}
	if timeout == 0 {
		return 0, false, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case res := <-p.results:
		return p.deliver(events, res)
	case <-p.woken:
		return 0, true, nil
	case <-timer:
		return 0, false, nil
	}
}

// deliver masks scripted events to the registered interest, like the real
// pollers do.
func (p *fakePoller) deliver(events []Event, res fakeWait) (int, bool, error) {
	if res.err != nil {
		return 0, false, res.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for _, ev := range res.events {
		interest, ok := p.interest[ev.FD]
		if !ok || n == len(events) {
			continue
		}
		if ev.Ready &= interest; ev.Ready == 0 {
			continue
		}
		events[n] = ev
		n++
	}
	return n, res.woken, nil
}

func (p *fakePoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	p.wakes.Add(1)
	select {
	case p.woken <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePoller) Close() error {
	p.closes.Add(1)
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPollerClosed
	}
	return nil
}

func (p *fakePoller) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *fakePoller) Interest() map[int]Interest {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := make(map[int]Interest, len(p.interest))
	for k, v := range p.interest {
		m[k] = v
	}
	return m
}

func (p *fakePoller) resetOps() {
	p.mu.Lock()
	p.ops = nil
	p.mu.Unlock()
}

// fakeContext is a PollerContext handing out fakePollers.
type fakeContext struct {
	newErr error
	// configure is called with each new poller
	configure func(p *fakePoller)
	pollers   []*fakePoller
	closed    []*fakePoller
	mu        sync.Mutex
}

var _ PollerContext = (*fakeContext)(nil)

func (x *fakeContext) NewPoller() (Poller, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.newErr != nil {
		return nil, x.newErr
	}
	p := newFakePoller(len(x.pollers))
	if x.configure != nil {
		x.configure(p)
	}
	x.pollers = append(x.pollers, p)
	return p, nil
}

func (x *fakeContext) ClosePoller(p Poller) error {
	x.mu.Lock()
	x.closed = append(x.closed, p.(*fakePoller))
	x.mu.Unlock()
	return p.Close()
}

func (x *fakeContext) setNewErr(err error) {
	x.mu.Lock()
	x.newErr = err
	x.mu.Unlock()
}

func (x *fakeContext) Pollers() []*fakePoller {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*fakePoller(nil), x.pollers...)
}

func (x *fakeContext) Closed() []*fakePoller {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*fakePoller(nil), x.closed...)
}

// current returns the most recently created poller.
func (x *fakeContext) current() *fakePoller {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.pollers[len(x.pollers)-1]
}

func newTestReactor(t *testing.T, opts ...Option) (*Reactor, *fakeContext) {
	t.Helper()
	ctx := new(fakeContext)
	r, err := New(append([]Option{WithContext(ctx)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to create reactor: %v", err)
	}
	return r, ctx
}

// newTestLogger returns a debug level JSON logger writing to w.
func newTestLogger(w io.Writer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(stumpy.L.LevelDebug()),
	).Logger()
}

// testChannel is a Channel whose descriptor can be closed.
type testChannel struct {
	fd     atomic.Int64
	closed atomic.Bool
}

func newTestChannel(fd int) *testChannel {
	ch := new(testChannel)
	ch.fd.Store(int64(fd))
	return ch
}

func (x *testChannel) FD() (int, error) {
	if x.closed.Load() {
		return -1, ErrChannelClosed
	}
	return int(x.fd.Load()), nil
}

func (x *testChannel) Close() { x.closed.Store(true) }

// recorder collects handler callbacks, as "fd:kind".
type recorder struct {
	calls []string
	mu    sync.Mutex
}

func (x *recorder) handler(fd int, hooks ...func(kind Interest)) Handler {
	record := func(kind Interest) func() {
		return func() {
			x.mu.Lock()
			x.calls = append(x.calls, fmt.Sprintf("%d:%s", fd, kind))
			x.mu.Unlock()
			for _, hook := range hooks {
				hook(kind)
			}
		}
	}
	return HandlerFuncs{
		Acceptable:  record(InterestAccept),
		Connectable: record(InterestConnect),
		Writable:    record(InterestWrite),
		Readable:    record(InterestRead),
	}
}

func (x *recorder) Calls() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.calls...)
}
