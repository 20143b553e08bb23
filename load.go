package reactor

import (
	"sync/atomic"
)

// LoadMeter receives load adjustments: +1 for each AddHandle, -1 for each
// RemoveHandle. Called on the reactor goroutine.
type LoadMeter interface {
	AdjustLoad(delta int)
}

// LoadFunc adapts a function to [LoadMeter].
type LoadFunc func(delta int)

// AdjustLoad implements [LoadMeter].
func (f LoadFunc) AdjustLoad(delta int) { f(delta) }

// loadCounter is the built-in meter backing Reactor.Load.
type loadCounter struct {
	n atomic.Int64
}

func (x *loadCounter) AdjustLoad(delta int) {
	x.n.Add(int64(delta))
}

func (x *loadCounter) Load() int {
	return int(x.n.Load())
}
