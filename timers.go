package reactor

import (
	"container/heap"
	"time"

	"github.com/joeycumines/logiface"
)

// Timers is the due-timer collaborator consulted once per loop iteration.
// Both methods are called on the reactor goroutine, RunDue first.
type Timers interface {
	// NextTimeout returns how long the loop may block before the next timer
	// is due. Negative means no timer is pending (block until woken).
	NextTimeout() time.Duration

	// RunDue executes every timer that is due.
	RunDue()
}

// TimerQueue is a min-heap of one-shot timers, implementing Timers.
//
// It is confined to the reactor goroutine: AddTimer and Timer.Cancel must be
// called from reactor callbacks (or Reactor.Submit), or before Start.
type TimerQueue struct {
	logger *logiface.Logger[logiface.Event]
	now    func() time.Time
	heap   timerHeap
	seq    uint64
}

var _ Timers = (*TimerQueue)(nil)

// Timer is a handle to a scheduled callback.
type Timer struct {
	when  time.Time
	fn    func()
	queue *TimerQueue
	seq   uint64
	index int // -1 once run or cancelled
}

// NewTimerQueue creates an empty TimerQueue. Panics raised by timer callbacks
// are recovered and logged to logger, which may be nil.
func NewTimerQueue(logger *logiface.Logger[logiface.Event]) *TimerQueue {
	return &TimerQueue{
		logger: logger,
		now:    time.Now,
	}
}

// AddTimer schedules fn to run once, after d.
func (x *TimerQueue) AddTimer(d time.Duration, fn func()) *Timer {
	x.seq++
	t := &Timer{
		when:  x.now().Add(d),
		fn:    fn,
		queue: x,
		seq:   x.seq,
	}
	heap.Push(&x.heap, t)
	return t
}

// Cancel prevents the timer from running, returning false if it already ran
// or was cancelled.
func (t *Timer) Cancel() bool {
	if t == nil || t.queue == nil || t.index < 0 {
		return false
	}
	heap.Remove(&t.queue.heap, t.index)
	return true
}

// Len returns the number of pending timers.
func (x *TimerQueue) Len() int {
	return x.heap.Len()
}

// NextTimeout implements Timers.
func (x *TimerQueue) NextTimeout() time.Duration {
	if x.heap.Len() == 0 {
		return -1
	}
	d := x.heap[0].when.Sub(x.now())
	if d < 0 {
		return 0
	}
	return d
}

// RunDue implements Timers. Timers added by callbacks with a zero delay run
// on the next call, not this one.
func (x *TimerQueue) RunDue() {
	now := x.now()
	limit := x.seq
	for x.heap.Len() != 0 {
		t := x.heap[0]
		if t.when.After(now) || t.seq > limit {
			return
		}
		heap.Pop(&x.heap)
		x.run(t)
	}
}

func (x *TimerQueue) run(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Err().
				Err(PanicError{Value: r}).
				Str("category", "timer").
				Log("reactor: timer panicked")
		}
	}()
	t.fn()
}

// timerHeap is a min-heap of timers, ordered by due time then insertion.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
