//go:build linux || darwin

package reactor

import (
	"testing"

	"golang.org/x/sys/unix"
)

// socketpair returns a connected, non-blocking pair of unix stream sockets,
// closed on test cleanup.
func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
		fd := fd
		t.Cleanup(func() { _ = unix.Close(fd) })
	}
	return fds[0], fds[1]
}

func newPlatformPoller(t *testing.T) Poller {
	t.Helper()
	p, err := NewPoller()
	if err != nil {
		t.Fatalf("failed to create poller: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}
