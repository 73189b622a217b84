package renderer

import (
	"fmt"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// DescriptorPool linearly hands out ranges of one shader-visible heap. Ranges
// live until Free rewinds the cursor.
type DescriptorPool struct {
	heap       metadata.DescriptorHeap
	maxHeapNum int
	cursor     int
	increment  uint32
	cpuBase    metadata.CPUDescriptorHandle
	gpuBase    metadata.GPUDescriptorHandle
}

func NewDescriptorPool(device metadata.Device, maxHeapNum int) *DescriptorPool {
	heap, err := device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeCBVSRVUAV,
		NumDescriptors: maxHeapNum,
		ShaderVisible:  true,
		Label:          fmt.Sprintf("descriptor-pool-%d", maxHeapNum),
	})
	core.Must(err, "CreateDescriptorHeap")
	return &DescriptorPool{
		heap:       heap,
		maxHeapNum: maxHeapNum,
		increment:  device.DescriptorHandleIncrementSize(metadata.DescriptorHeapTypeCBVSRVUAV),
		cpuBase:    heap.CPUStart(),
		gpuBase:    heap.GPUStart(),
	}
}

// Alloc reserves requiredSize consecutive descriptors and returns the handles
// of the first one.
func (p *DescriptorPool) Alloc(requiredSize int) (metadata.CPUDescriptorHandle, metadata.GPUDescriptorHandle) {
	if requiredSize < 1 {
		core.Fatal(core.ErrMisuse, "descriptor range of %d requested", requiredSize)
	}
	if p.cursor >= p.maxHeapNum || p.cursor+requiredSize > p.maxHeapNum {
		core.Fatal(core.ErrCapacityExhausted, "descriptor pool: %d of %d used, %d requested", p.cursor, p.maxHeapNum, requiredSize)
	}
	cpu := p.cpuBase.Offset(p.cursor, p.increment)
	gpu := p.gpuBase.Offset(p.cursor, p.increment)
	p.cursor += requiredSize
	return cpu, gpu
}

func (p *DescriptorPool) Free() {
	core.MetricsPoolUsage("descriptor-pool", p.cursor)
	p.cursor = 0
}

func (p *DescriptorPool) Heap() metadata.DescriptorHeap {
	return p.heap
}

func (p *DescriptorPool) IncrementSize() uint32 {
	return p.increment
}

func (p *DescriptorPool) Used() int {
	return p.cursor
}

func (p *DescriptorPool) Shutdown() {
	p.heap.Release()
}
