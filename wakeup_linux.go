//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// newWakeFd creates the eventfd an epoll poller is woken through. The one fd
// is both the read and the write end.
func newWakeFd() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}
