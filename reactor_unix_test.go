//go:build linux || darwin

package reactor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestReactor_platformEcho(t *testing.T) {
	var buf bytes.Buffer
	var bufMu sync.Mutex
	logger := newTestLogger(&lockedBuffer{b: &buf, mu: &bufMu})

	r, err := New(WithLogger(logger), WithConfinementCheck(true))
	require.NoError(t, err)
	defer r.Close()

	a, b := socketpair(t)
	received := make(chan []byte, 1)

	var h *Handle
	h = r.AddHandle(FD(a), HandlerFuncs{
		Readable: func() {
			var data [64]byte
			n, err := unix.Read(a, data[:])
			if err != nil {
				return
			}
			// echo back, then wait for writability to confirm
			_, _ = unix.Write(a, data[:n])
			r.ResetPollIn(h)
			r.SetPollOut(h)
			received <- append([]byte(nil), data[:n]...)
		},
		Writable: func() {
			r.ResetPollOut(h)
		},
	})
	r.SetPollIn(h)
	require.NoError(t, r.Start())

	_, err = unix.Write(b, []byte("ping"))
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Equal(t, "ping", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("readable not dispatched")
	}

	require.Eventually(t, func() bool {
		var data [64]byte
		n, err := unix.Read(b, data[:])
		return err == nil && string(data[:n]) == "ping"
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, r.Close())
	assert.Equal(t, StateStopped, r.State())
	assert.GreaterOrEqual(t, r.Stats().Dispatched, uint64(1))

	bufMu.Lock()
	defer bufMu.Unlock()
	assert.Contains(t, buf.String(), `"msg":"reactor: started"`)
	assert.Contains(t, buf.String(), `"msg":"reactor: stopped"`)
}

func TestReactor_platformStopWhileBlockedForever(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	a, _ := socketpair(t)
	h := r.AddHandle(FD(a), UnimplementedHandler{})
	r.SetPollIn(h)
	require.NoError(t, r.Start())

	// let it block
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.RequestStop()
	require.NoError(t, r.AwaitStopped(ctx))
	assert.Equal(t, uint64(0), r.Stats().SpuriousWakeups)
}

func TestReactor_platformSubmitFromOtherGoroutines(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Close()

	const goroutines, perGoroutine = 8, 50
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	done := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				assert.NoError(t, r.Submit(func() {
					mu.Lock()
					count++
					if count == goroutines*perGoroutine {
						close(done)
					}
					mu.Unlock()
				}))
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted functions did not all run")
	}
}

func TestReactor_platformRebuildKeepsRegistrations(t *testing.T) {
	r, err := New(WithRebuildRateLimits(nil))
	require.NoError(t, err)
	defer r.Close()

	a, b := socketpair(t)
	readable := make(chan struct{}, 1)
	h := r.AddHandle(FD(a), HandlerFuncs{Readable: func() {
		var data [64]byte
		_, _ = unix.Read(a, data[:])
		select {
		case readable <- struct{}{}:
		default:
		}
	}})
	r.SetPollIn(h)
	require.NoError(t, r.Start())

	rebuilt := make(chan bool, 1)
	require.NoError(t, r.Submit(func() {
		rebuilt <- r.rebuild("test")
	}))
	require.True(t, <-rebuilt)
	assert.Equal(t, uint64(1), r.Stats().Rebuilds)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	select {
	case <-readable:
	case <-time.After(5 * time.Second):
		t.Fatal("readable not dispatched after rebuild")
	}
}

func TestReactor_platformClosedFDFaults(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])
	require.NoError(t, unix.Close(fds[0]))

	faulted := make(chan uint64, 1)
	require.NoError(t, r.Submit(func() {
		h := r.AddHandle(FD(fds[0]), UnimplementedHandler{})
		r.SetPollIn(h)
		r.syncPass()
		faulted <- r.Stats().RegistrationFaults
	}))
	require.NoError(t, r.Start())
	assert.Equal(t, uint64(1), <-faulted)
}

func TestSyscallChannel(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pw.Close()

	ch := SyscallChannel(pr)
	fd, err := ch.FD()
	require.NoError(t, err)
	assert.Greater(t, fd, 2)

	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	readable := make(chan struct{}, 1)
	h := r.AddHandle(ch, HandlerFuncs{Readable: func() {
		var data [8]byte
		_, _ = unix.Read(fd, data[:])
		select {
		case readable <- struct{}{}:
		default:
		}
	}})
	r.SetPollIn(h)
	require.NoError(t, r.Start())

	_, err = pw.Write([]byte("x"))
	require.NoError(t, err)
	select {
	case <-readable:
	case <-time.After(5 * time.Second):
		t.Fatal("readable not dispatched")
	}

	require.NoError(t, r.Close())
	require.NoError(t, pr.Close())

	_, err = ch.FD()
	assert.True(t, errors.Is(err, ErrChannelClosed), "unexpected error: %v", err)
}

func TestFD(t *testing.T) {
	fd, err := FD(3).FD()
	assert.NoError(t, err)
	assert.Equal(t, 3, fd)

	_, err = FD(-1).FD()
	assert.ErrorIs(t, err, ErrChannelClosed)
}

// lockedBuffer serializes writes from the loop goroutine with test reads.
type lockedBuffer struct {
	b  *bytes.Buffer
	mu *sync.Mutex
}

func (x *lockedBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.Write(p)
}
