//go:build darwin

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements Poller using kqueue, with a self-pipe for wake-ups.
type kqueuePoller struct {
	interest map[int]Interest
	merged   map[int]int // fd -> index into the events being built by Wait
	buf      []unix.Kevent_t
	kq       int
	wakeFd   int
	wakeW    int
	closed   atomic.Bool
}

var _ Poller = (*kqueuePoller)(nil)

// NewPoller creates the platform poller (kqueue).
func NewPoller() (Poller, error) {
	return newKqueuePoller()
}

func newKqueuePoller() (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("reactor: kqueue: %w", err)
	}
	unix.CloseOnExec(kq)

	wakeFd, wakeW, err := newWakeFd()
	if err != nil {
		_ = closeFD(kq)
		return nil, fmt.Errorf("reactor: wake pipe: %w", err)
	}

	changes := []unix.Kevent_t{{
		Ident:  uint64(wakeFd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		_ = closeFD(wakeFd)
		_ = closeFD(wakeW)
		_ = closeFD(kq)
		return nil, fmt.Errorf("reactor: kevent add wake fd: %w", err)
	}

	return &kqueuePoller{
		interest: make(map[int]Interest),
		merged:   make(map[int]int),
		kq:       kq,
		wakeFd:   wakeFd,
		wakeW:    wakeW,
	}, nil
}

func (p *kqueuePoller) Register(fd int, interest Interest) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; ok {
		return fmt.Errorf("reactor: kqueue register fd %d: %w", fd, unix.EEXIST)
	}
	if err := p.apply(fd, 0, interest); err != nil {
		return fmt.Errorf("reactor: kqueue register fd %d: %w", fd, err)
	}
	p.interest[fd] = interest
	return nil
}

func (p *kqueuePoller) Modify(fd int, interest Interest) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	old, ok := p.interest[fd]
	if !ok {
		return fmt.Errorf("reactor: kqueue modify fd %d: %w", fd, unix.ENOENT)
	}
	if err := p.apply(fd, old, interest); err != nil {
		return fmt.Errorf("reactor: kqueue modify fd %d: %w", fd, err)
	}
	p.interest[fd] = interest
	return nil
}

func (p *kqueuePoller) Unregister(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	old, ok := p.interest[fd]
	if !ok {
		return fmt.Errorf("reactor: kqueue unregister fd %d: %w", fd, unix.ENOENT)
	}
	delete(p.interest, fd)
	if err := p.apply(fd, old, 0); err != nil {
		return fmt.Errorf("reactor: kqueue unregister fd %d: %w", fd, err)
	}
	return nil
}

func (p *kqueuePoller) Wait(events []Event, timeout time.Duration) (int, bool, error) {
	if p.closed.Load() {
		return 0, false, ErrPollerClosed
	}

	// read and write are separate filters, so up to two kevents per fd
	if size := 2*len(events) + 1; cap(p.buf) < size {
		p.buf = make([]unix.Kevent_t, size)
	}
	buf := p.buf[:2*len(events)+1]

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("reactor: kevent wait: %w", err)
	}

	clear(p.merged)
	var (
		count int
		woken bool
	)
	for i := 0; i < n; i++ {
		kev := &buf[i]
		fd := int(kev.Ident)
		if fd == p.wakeFd {
			drainWake(p.wakeFd)
			woken = true
			continue
		}
		interest, ok := p.interest[fd]
		if !ok {
			continue
		}
		ready := readyFor(
			interest,
			kev.Filter == unix.EVFILT_READ,
			kev.Filter == unix.EVFILT_WRITE,
			kev.Flags&unix.EV_ERROR != 0,
		)
		if ready == 0 {
			continue
		}
		if idx, ok := p.merged[fd]; ok {
			events[idx].Ready |= ready
			continue
		}
		if count == len(events) {
			continue
		}
		p.merged[fd] = count
		events[count] = Event{FD: fd, Ready: ready}
		count++
	}
	if count == 0 && n > 0 {
		woken = true
	}

	return count, woken, nil
}

func (p *kqueuePoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return writeWake(p.wakeW)
}

func (p *kqueuePoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPollerClosed
	}
	_ = closeFD(p.wakeFd)
	_ = closeFD(p.wakeW)
	return closeFD(p.kq)
}

// apply submits the filter changes needed to move fd from old to interest.
func (p *kqueuePoller) apply(fd int, old, interest Interest) error {
	var changes []unix.Kevent_t
	change := func(filter int16, was, want bool) {
		switch {
		case want && !was:
			changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_ADD | unix.EV_ENABLE})
		case was && !want:
			changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE})
		}
	}
	change(unix.EVFILT_READ, old.inbound() != 0, interest.inbound() != 0)
	change(unix.EVFILT_WRITE, old.outbound() != 0, interest.outbound() != 0)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}
