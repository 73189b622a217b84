package software

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

type fenceWaiter struct {
	value uint64
	ch    chan struct{}
}

// Fence is a monotonic counter advanced by the Queue. Waiters park on a
// channel that is closed once the value they need is reached.
type Fence struct {
	completed atomic.Uint64

	mu      sync.Mutex
	waiters []*fenceWaiter
}

func NewFence(initial uint64) *Fence {
	f := &Fence{}
	f.completed.Store(initial)
	return f
}

func (f *Fence) CompletedValue() uint64 {
	return f.completed.Load()
}

// signal raises the completed value. Lower values are ignored.
func (f *Fence) signal(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.completed.Load() {
		return
	}
	f.completed.Store(value)
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= value {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	if f.completed.Load() >= value {
		return nil
	}
	f.mu.Lock()
	if f.completed.Load() >= value {
		f.mu.Unlock()
		return nil
	}
	w := &fenceWaiter{value: value, ch: make(chan struct{})}
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		for i, other := range f.waiters {
			if other == w {
				f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		return ctx.Err()
	}
}

func (f *Fence) Release() {}
