package reactor

import (
	"fmt"
	"syscall"
)

// Channel is a selectable OS object, e.g. a socket or pipe.
//
// FD is called on the reactor goroutine during the sync pass, and must return
// an error (typically wrapping [ErrChannelClosed]) once the channel has been
// closed. The descriptor should be in non-blocking mode.
type Channel interface {
	FD() (int, error)
}

// FD is a raw file descriptor, implementing [Channel]. Negative values are
// treated as closed.
type FD int

// FD implements [Channel].
func (x FD) FD() (int, error) {
	if x < 0 {
		return -1, ErrChannelClosed
	}
	return int(x), nil
}

// SyscallChannel adapts a [syscall.Conn] (e.g. *net.TCPConn, *net.TCPListener,
// *os.File) to [Channel]. The descriptor is resolved via the raw conn each time
// it is requested, so a closed conn surfaces as a registration fault.
func SyscallChannel(conn syscall.Conn) Channel {
	return syscallChannel{conn: conn}
}

type syscallChannel struct {
	conn syscall.Conn
}

func (x syscallChannel) FD() (int, error) {
	rc, err := x.conn.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrChannelClosed, err)
	}
	fd := -1
	if err := rc.Control(func(v uintptr) { fd = int(v) }); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrChannelClosed, err)
	}
	if fd < 0 {
		return -1, ErrChannelClosed
	}
	return fd, nil
}

func (x syscallChannel) String() string {
	return fmt.Sprintf("%T", x.conn)
}
