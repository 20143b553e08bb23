//go:build linux || darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// wakeSignal is written to the wake fd; eventfd requires exactly 8 bytes.
var wakeSignal = [8]byte{1}

// closeFD closes a file descriptor on Unix systems.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// writeWake signals the write end of a wake fd. A full pipe or saturated
// eventfd already guarantees a pending wake-up, so EAGAIN is not an error.
func writeWake(fd int) error {
	buf := wakeSignal
	_, err := unix.Write(fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drainWake empties the read end of a wake fd.
func drainWake(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err != nil || n <= 0 {
			return
		}
	}
}
