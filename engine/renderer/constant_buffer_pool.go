package renderer

import (
	"fmt"

	"github.com/spaghettifunk/cadence/engine/containers"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// ConstantBufferAlignment is the required size granularity of constant buffer views.
const ConstantBufferAlignment uint32 = 256

// ConstantBuffer is one slot of a ConstantBufferPool. SysMem aliases the
// mapped upload memory at GPUAddress. The slot is reused after the next Free.
type ConstantBuffer struct {
	SysMem     []byte
	GPUAddress metadata.GPUAddress
	CBV        metadata.CPUDescriptorHandle
}

// ConstantBufferPool carves one persistently mapped upload buffer into
// equally sized slots, each with a CBV in a CPU-only heap.
type ConstantBufferPool struct {
	heap     metadata.DescriptorHeap
	upload   metadata.UploadBuffer
	slotSize uint32
	pool     *containers.Pool[ConstantBuffer]
}

func NewConstantBufferPool(device metadata.Device, sizePerCbv uint32, maxNumCbv int, name string) *ConstantBufferPool {
	if sizePerCbv == 0 || maxNumCbv < 1 {
		core.Fatal(core.ErrMisuse, "constant buffer pool `%s` with %d slots of %d bytes", name, maxNumCbv, sizePerCbv)
	}
	slotSize := math.AlignUp(sizePerCbv, ConstantBufferAlignment)

	upload, err := device.CreateUploadBuffer(uint64(slotSize)*uint64(maxNumCbv), fmt.Sprintf("cb-%s", name))
	core.Must(err, "CreateUploadBuffer")
	heap, err := device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeCBVSRVUAV,
		NumDescriptors: maxNumCbv,
		Label:          fmt.Sprintf("cbv-%s", name),
	})
	core.Must(err, "CreateDescriptorHeap")

	increment := device.DescriptorHandleIncrementSize(metadata.DescriptorHeapTypeCBVSRVUAV)
	mem := upload.Bytes()
	p := &ConstantBufferPool{heap: heap, upload: upload, slotSize: slotSize}
	p.pool = containers.NewPool(maxNumCbv, func(i int) ConstantBuffer {
		off := uint64(i) * uint64(slotSize)
		cb := ConstantBuffer{
			SysMem:     mem[off : off+uint64(slotSize) : off+uint64(slotSize)],
			GPUAddress: upload.GPUAddress() + metadata.GPUAddress(off),
			CBV:        heap.CPUStart().Offset(i, increment),
		}
		device.CreateConstantBufferView(cb.GPUAddress, slotSize, cb.CBV)
		return cb
	}).Named("cb-" + name).Prefill()
	return p
}

func (p *ConstantBufferPool) Alloc() *ConstantBuffer {
	_, cb := p.pool.Alloc()
	return cb
}

func (p *ConstantBufferPool) Free() {
	core.MetricsPoolUsage(p.pool.Name(), p.pool.Used())
	p.pool.Reset(nil)
}

func (p *ConstantBufferPool) SlotSize() uint32 {
	return p.slotSize
}

func (p *ConstantBufferPool) Used() int {
	return p.pool.Used()
}

func (p *ConstantBufferPool) Shutdown() {
	p.heap.Release()
	p.upload.Release()
}
