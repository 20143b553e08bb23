//go:build linux

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller implements Poller using level-triggered epoll.
//
// An fd registered with an empty interest is tracked but kept out of the
// epoll set, since epoll always reports EPOLLERR/EPOLLHUP and would otherwise
// make every Wait return immediately.
type epollPoller struct {
	interest map[int]Interest
	buf      []unix.EpollEvent
	epfd     int
	wakeFd   int
	wakeW    int
	closed   atomic.Bool
}

var _ Poller = (*epollPoller)(nil)

// NewPoller creates the platform poller (epoll).
func NewPoller() (Poller, error) {
	return newEpollPoller()
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll create: %w", err)
	}

	wakeFd, wakeW, err := newWakeFd()
	if err != nil {
		_ = closeFD(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = closeFD(wakeFd)
		_ = closeFD(epfd)
		return nil, fmt.Errorf("reactor: epoll ctl add wake fd: %w", err)
	}

	return &epollPoller{
		interest: make(map[int]Interest),
		epfd:     epfd,
		wakeFd:   wakeFd,
		wakeW:    wakeW,
	}, nil
}

func (p *epollPoller) Register(fd int, interest Interest) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; ok {
		return fmt.Errorf("reactor: epoll register fd %d: %w", fd, unix.EEXIST)
	}
	if interest != 0 {
		if err := p.ctl(unix.EPOLL_CTL_ADD, fd, interest); err != nil {
			return fmt.Errorf("reactor: epoll register fd %d: %w", fd, err)
		}
	}
	p.interest[fd] = interest
	return nil
}

func (p *epollPoller) Modify(fd int, interest Interest) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	old, ok := p.interest[fd]
	if !ok {
		return fmt.Errorf("reactor: epoll modify fd %d: %w", fd, unix.ENOENT)
	}
	var err error
	switch {
	case old == interest:
	case old == 0:
		err = p.ctl(unix.EPOLL_CTL_ADD, fd, interest)
	case interest == 0:
		err = p.ctl(unix.EPOLL_CTL_DEL, fd, 0)
	default:
		err = p.ctl(unix.EPOLL_CTL_MOD, fd, interest)
	}
	if err != nil {
		return fmt.Errorf("reactor: epoll modify fd %d: %w", fd, err)
	}
	p.interest[fd] = interest
	return nil
}

func (p *epollPoller) Unregister(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	old, ok := p.interest[fd]
	if !ok {
		return fmt.Errorf("reactor: epoll unregister fd %d: %w", fd, unix.ENOENT)
	}
	delete(p.interest, fd)
	if old != 0 {
		if err := p.ctl(unix.EPOLL_CTL_DEL, fd, 0); err != nil {
			return fmt.Errorf("reactor: epoll unregister fd %d: %w", fd, err)
		}
	}
	return nil
}

func (p *epollPoller) Wait(events []Event, timeout time.Duration) (int, bool, error) {
	if p.closed.Load() {
		return 0, false, ErrPollerClosed
	}

	// one extra slot for the wake fd
	if cap(p.buf) < len(events)+1 {
		p.buf = make([]unix.EpollEvent, len(events)+1)
	}
	buf := p.buf[:len(events)+1]

	n, err := unix.EpollWait(p.epfd, buf, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("reactor: epoll wait: %w", err)
	}

	var (
		count int
		woken bool
	)
	for i := 0; i < n && count < len(events); i++ {
		ev := &buf[i]
		fd := int(ev.Fd)
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
			ev.Events&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0,
			ev.Events&unix.EPOLLOUT != 0,
			ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		)
		if ready == 0 {
			continue
		}
		events[count] = Event{FD: fd, Ready: ready}
		count++
	}
	if count == 0 && n > 0 {
		// something real happened, just nothing deliverable
		woken = true
	}

	return count, woken, nil
}

func (p *epollPoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return writeWake(p.wakeW)
}

func (p *epollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPollerClosed
	}
	_ = closeFD(p.wakeFd)
	if p.wakeW != p.wakeFd {
		_ = closeFD(p.wakeW)
	}
	return closeFD(p.epfd)
}

func (p *epollPoller) ctl(op int, fd int, interest Interest) error {
	var ev unix.EpollEvent
	if interest.inbound() != 0 {
		ev.Events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest.outbound() != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	ev.Fd = int32(fd)
	if op == unix.EPOLL_CTL_DEL {
		return unix.EpollCtl(p.epfd, op, fd, nil)
	}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}
