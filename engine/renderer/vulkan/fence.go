package vulkan

import (
	"context"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/core"
	"go.uber.org/atomic"
)

// waitSliceNs bounds each vkWaitForFences call so a cancelled context is
// noticed.
const waitSliceNs uint64 = 1_000_000

type pendingSignal struct {
	value  uint64
	handle vk.Fence
}

// Fence is a monotonic counter built from a chain of binary vk.Fence
// objects, one per Signal. Completed fences are reset and recycled.
type Fence struct {
	device    *Device
	completed atomic.Uint64

	mu      sync.Mutex
	pending []pendingSignal
	free    []vk.Fence
}

func newFence(d *Device, initial uint64) *Fence {
	f := &Fence{device: d}
	f.completed.Store(initial)
	return f
}

func (f *Fence) acquire() (vk.Fence, error) {
	if n := len(f.free); n > 0 {
		h := f.free[n-1]
		f.free = f.free[:n-1]
		return h, nil
	}
	var h vk.Fence
	err := check("vkCreateFence", vk.CreateFence(f.device.logical(), &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, f.device.ctx.Allocator, &h))
	return h, err
}

// signal submits an empty batch that signals a fresh vk.Fence once every
// earlier batch on q completed.
func (f *Fence) signal(q *Queue, value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.acquire()
	if err != nil {
		return err
	}
	if err := q.submit(nil, h); err != nil {
		f.free = append(f.free, h)
		return err
	}
	f.pending = append(f.pending, pendingSignal{value: value, handle: h})
	return nil
}

// poll retires every signaled fence at the head of the chain.
func (f *Fence) poll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev := f.device.logical()
	for len(f.pending) > 0 {
		p := f.pending[0]
		if vk.GetFenceStatus(dev, p.handle) != vk.Success {
			break
		}
		if p.value > f.completed.Load() {
			f.completed.Store(p.value)
		}
		if res := vk.ResetFences(dev, 1, []vk.Fence{p.handle}); res != vk.Success {
			core.LogWarn("failed to reset fence: %s", VulkanResultString(res))
			vk.DestroyFence(dev, p.handle, f.device.ctx.Allocator)
		} else {
			f.free = append(f.free, p.handle)
		}
		f.pending = f.pending[1:]
	}
}

func (f *Fence) CompletedValue() uint64 {
	f.poll()
	return f.completed.Load()
}

// target returns the oldest pending fence that reaches value.
func (f *Fence) target(value uint64) (vk.Fence, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		if p.value >= value {
			return p.handle, true
		}
	}
	return vk.NullFence, false
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	for {
		if f.CompletedValue() >= value {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		h, ok := f.target(value)
		if !ok {
			// nothing signals value yet
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
			continue
		}
		switch res := vk.WaitForFences(f.device.logical(), 1, []vk.Fence{h}, vk.True, waitSliceNs); res {
		case vk.Success, vk.Timeout:
		case vk.ErrorDeviceLost:
			core.Fatal(core.ErrGPUFailure, "fence wait: %s", VulkanResultString(res))
		default:
			return check("vkWaitForFences", res)
		}
	}
}

func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev := f.device.logical()
	for _, p := range f.pending {
		vk.DestroyFence(dev, p.handle, f.device.ctx.Allocator)
	}
	for _, h := range f.free {
		vk.DestroyFence(dev, h, f.device.ctx.Allocator)
	}
	f.pending = nil
	f.free = nil
}
