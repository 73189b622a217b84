package renderer

import (
	"sync"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// DescriptorAllocator manages long-lived descriptors such as texture views.
// Slots are freed individually and reused most-recently-freed first. It is
// safe for concurrent use.
type DescriptorAllocator struct {
	mu        sync.Mutex
	heap      metadata.DescriptorHeap
	increment uint32
	free      []int
	allocated []bool
}

func NewDescriptorAllocator(device metadata.Device, maxCount int, shaderVisible bool) *DescriptorAllocator {
	heap, err := device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeCBVSRVUAV,
		NumDescriptors: maxCount,
		ShaderVisible:  shaderVisible,
		Label:          "descriptor-allocator",
	})
	core.Must(err, "CreateDescriptorHeap")
	a := &DescriptorAllocator{
		heap:      heap,
		increment: device.DescriptorHandleIncrementSize(metadata.DescriptorHeapTypeCBVSRVUAV),
		free:      make([]int, 0, maxCount),
		allocated: make([]bool, maxCount),
	}
	for i := maxCount - 1; i >= 0; i-- {
		a.free = append(a.free, i)
	}
	return a
}

func (a *DescriptorAllocator) Alloc() metadata.CPUDescriptorHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		core.Fatal(core.ErrCapacityExhausted, "descriptor allocator: all %d descriptors in use", len(a.allocated))
	}
	last := len(a.free) - 1
	idx := a.free[last]
	a.free = a.free[:last]
	a.allocated[idx] = true
	return a.heap.CPUStart().Offset(idx, a.increment)
}

func (a *DescriptorAllocator) FreeDescriptor(h metadata.CPUDescriptorHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.index(h)
	if !a.allocated[idx] {
		core.Fatal(core.ErrMisuse, "descriptor %d freed twice", idx)
	}
	a.allocated[idx] = false
	a.free = append(a.free, idx)
}

// GPUHandle maps a CPU handle of a shader-visible allocator to its GPU handle.
func (a *DescriptorAllocator) GPUHandle(h metadata.CPUDescriptorHandle) metadata.GPUDescriptorHandle {
	if !a.heap.Desc().ShaderVisible {
		core.Fatal(core.ErrMisuse, "GPU handle requested from a CPU-only descriptor allocator")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heap.GPUStart().Offset(a.index(h), a.increment)
}

func (a *DescriptorAllocator) index(h metadata.CPUDescriptorHandle) int {
	base := a.heap.CPUStart().Ptr
	if h.Ptr < base || (h.Ptr-base)%uint64(a.increment) != 0 {
		core.Fatal(core.ErrMisuse, "descriptor %#x does not belong to this allocator", h.Ptr)
	}
	idx := int((h.Ptr - base) / uint64(a.increment))
	if idx >= len(a.allocated) {
		core.Fatal(core.ErrMisuse, "descriptor %#x does not belong to this allocator", h.Ptr)
	}
	return idx
}

func (a *DescriptorAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated) - len(a.free)
}

func (a *DescriptorAllocator) Shutdown() {
	if n := a.InUse(); n > 0 {
		core.LogWarn("descriptor allocator shut down with %d descriptor(s) still allocated", n)
	}
	a.heap.Release()
}
