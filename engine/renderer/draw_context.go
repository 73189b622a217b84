package renderer

import (
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// DrawContext carries the per-worker, per-frame state a draw records with.
// Everything except List is read-only while workers run.
type DrawContext struct {
	ThreadIndex  int
	Device       metadata.Device
	List         metadata.CommandList
	DescPool     *DescriptorPool
	CBManager    *ConstantBufferManager
	Pipelines    *PipelineRegistry
	Textures     *TextureManager
	View         math.Mat4
	Projection   math.Mat4
	ScreenWidth  uint32
	ScreenHeight uint32
}

// bindTable copies the source descriptors into a fresh range of the
// descriptor pool and binds it as root table 0.
func (ctx *DrawContext) bindTable(srcs ...metadata.CPUDescriptorHandle) {
	cpu, gpu := ctx.DescPool.Alloc(len(srcs))
	inc := ctx.DescPool.IncrementSize()
	for i, src := range srcs {
		ctx.Device.CopyDescriptorsSimple(1, cpu.Offset(i, inc), src, metadata.DescriptorHeapTypeCBVSRVUAV)
	}
	ctx.List.SetDescriptorHeap(ctx.DescPool.Heap())
	ctx.List.SetGraphicsRootDescriptorTable(0, gpu)
}
