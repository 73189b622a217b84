package software

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"go.uber.org/atomic"
)

const (
	descriptorIncrement uint32 = 32
	gpuHandleBit        uint64 = 1 << 63
	addressAlignment    uint64 = 64 * 1024
)

// Stats counts what the device executed. Every field is updated from the
// queue goroutine and may be read at any time.
type Stats struct {
	Batches        atomic.Int64
	ListsExecuted  atomic.Int64
	Draws          atomic.Int64
	IndexedDraws   atomic.Int64
	Clears         atomic.Int64
	TextureUploads atomic.Int64
	Presents       atomic.Int64
}

// Device is a CPU implementation of metadata.Device. Command lists record
// into memory and execute on a Queue.
type Device struct {
	mu          sync.RWMutex
	heaps       map[uint32]*descriptorHeap
	nextHeap    atomic.Uint32
	nextAddress atomic.Uint64

	violationsMu sync.Mutex
	violations   []string

	stats Stats
}

func NewDevice() *Device {
	d := &Device{
		heaps: make(map[uint32]*descriptorHeap),
	}
	d.nextAddress.Store(addressAlignment)
	return d
}

func (d *Device) Stats() *Stats {
	return &d.stats
}

// Violations returns every synchronization or API misuse the device detected.
func (d *Device) Violations() []string {
	d.violationsMu.Lock()
	defer d.violationsMu.Unlock()
	out := make([]string, len(d.violations))
	copy(out, d.violations)
	return out
}

func (d *Device) violation(msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	core.LogError("software device: %s", s)
	d.violationsMu.Lock()
	d.violations = append(d.violations, s)
	d.violationsMu.Unlock()
}

func label(name string) string {
	return fmt.Sprintf("%s#%s", name, uuid.NewString()[:8])
}

func (d *Device) allocAddress(size uint64) metadata.GPUAddress {
	span := (size + addressAlignment - 1) / addressAlignment * addressAlignment
	if span == 0 {
		span = addressAlignment
	}
	return metadata.GPUAddress(d.nextAddress.Add(span) - span)
}

func (d *Device) CreateCommandAllocator(name string) (metadata.CommandAllocator, error) {
	return &commandAllocator{device: d, label: label(name)}, nil
}

func (d *Device) CreateCommandList(alloc metadata.CommandAllocator, name string) (metadata.CommandList, error) {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return nil, fmt.Errorf("allocator %T does not belong to the software device", alloc)
	}
	return &commandList{device: d, alloc: a, label: label(name), open: true}, nil
}

func (d *Device) CreateDescriptorHeap(desc metadata.DescriptorHeapDesc) (metadata.DescriptorHeap, error) {
	if desc.NumDescriptors < 1 {
		return nil, fmt.Errorf("descriptor heap `%s` needs at least one descriptor", desc.Label)
	}
	id := d.nextHeap.Inc()
	h := &descriptorHeap{
		device: d,
		id:     id,
		desc:   desc,
		slots:  make([]descriptor, desc.NumDescriptors),
	}
	d.mu.Lock()
	d.heaps[id] = h
	d.mu.Unlock()
	return h, nil
}

func (d *Device) DescriptorHandleIncrementSize(t metadata.DescriptorHeapType) uint32 {
	return descriptorIncrement
}

func (d *Device) CreateUploadBuffer(size uint64, name string) (metadata.UploadBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("upload buffer `%s` has zero size", name)
	}
	return &buffer{
		label:   label(name),
		data:    make([]byte, size),
		address: d.allocAddress(size),
	}, nil
}

func (d *Device) CreateBuffer(data []byte, name string) (metadata.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("buffer `%s` has no data", name)
	}
	b := &buffer{
		label:   label(name),
		data:    make([]byte, len(data)),
		address: d.allocAddress(uint64(len(data))),
	}
	copy(b.data, data)
	return b, nil
}

func (d *Device) CreateTexture(desc metadata.TextureDesc, name string) (metadata.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture `%s` has zero extent", name)
	}
	// textures start ready for sampling
	return newTexture(desc, label(name), metadata.ResourceStatePixelShaderResource), nil
}

func (d *Device) CreateConstantBufferView(addr metadata.GPUAddress, size uint32, dest metadata.CPUDescriptorHandle) {
	if size%256 != 0 {
		d.violation("constant buffer view size %d is not 256-byte aligned", size)
	}
	d.writeDescriptor(dest.Ptr, descriptor{kind: descriptorCBV, address: addr, size: size})
}

func (d *Device) CreateShaderResourceView(tex metadata.Texture, dest metadata.CPUDescriptorHandle) {
	d.writeDescriptor(dest.Ptr, descriptor{kind: descriptorSRV, texture: tex})
}

func (d *Device) CopyDescriptorsSimple(n int, dest, src metadata.CPUDescriptorHandle, t metadata.DescriptorHeapType) {
	for i := 0; i < n; i++ {
		off := uint64(i) * uint64(descriptorIncrement)
		desc, ok := d.readDescriptor(src.Ptr + off)
		if !ok {
			return
		}
		d.writeDescriptor(dest.Ptr+off, desc)
	}
}

func (d *Device) CreatePipelineState(desc metadata.PipelineStateDesc) (metadata.PipelineState, error) {
	if desc.Kind < 0 || desc.Kind >= metadata.PipelineKindCount {
		return nil, fmt.Errorf("unknown pipeline kind %d", desc.Kind)
	}
	return &pipelineState{desc: desc, label: label(desc.Label)}, nil
}

func (d *Device) CreateFence(initial uint64) (metadata.Fence, error) {
	return NewFence(initial), nil
}

// resolve finds the heap slot addressed by ptr. The GPU bit is ignored.
func (d *Device) resolve(ptr uint64) (*descriptorHeap, int, bool) {
	ptr &^= gpuHandleBit
	id := uint32(ptr >> 32)
	off := uint32(ptr)
	d.mu.RLock()
	h, ok := d.heaps[id]
	d.mu.RUnlock()
	if !ok || off%descriptorIncrement != 0 {
		return nil, 0, false
	}
	idx := int(off / descriptorIncrement)
	if idx >= len(h.slots) {
		return nil, 0, false
	}
	return h, idx, true
}

func (d *Device) writeDescriptor(ptr uint64, desc descriptor) {
	h, idx, ok := d.resolve(ptr)
	if !ok {
		d.violation("descriptor write to invalid handle %#x", ptr)
		return
	}
	h.mu.Lock()
	h.slots[idx] = desc
	h.mu.Unlock()
}

func (d *Device) readDescriptor(ptr uint64) (descriptor, bool) {
	h, idx, ok := d.resolve(ptr)
	if !ok {
		d.violation("descriptor read from invalid handle %#x", ptr)
		return descriptor{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[idx], true
}

func (d *Device) releaseHeap(id uint32) {
	d.mu.Lock()
	delete(d.heaps, id)
	d.mu.Unlock()
}
