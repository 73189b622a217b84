package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState
}

func createCommandPool(context *VulkanContext) (vk.CommandPool, error) {
	var pool vk.CommandPool
	err := check("vkCreateCommandPool", vk.CreateCommandPool(context.Device.LogicalDevice, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: context.Device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, context.Allocator, &pool))
	return pool, err
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: 1,
	}, handles)); err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{Handle: handles[0], State: COMMAND_BUFFER_STATE_READY}, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(singleUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, beginInfo)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// AllocateAndBeginSingleUse allocates a primary buffer from pool and starts
// recording a one-time submission.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse submits the buffer, waits for the queue to drain and frees it.
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	defer v.Free(context, pool)
	if err := v.End(); err != nil {
		return err
	}
	return context.Locks.SafeQueueCall(context.Device.GraphicsQueueIndex, func() error {
		if err := check("vkQueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{v.Handle},
		}}, vk.NullFence)); err != nil {
			return err
		}
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
	})
}

// commandAllocator owns a command pool and the staging buffers of the
// texture uploads recorded on its lists.
type commandAllocator struct {
	device *Device
	label  string
	pool   vk.CommandPool

	mu      sync.Mutex
	staging []*buffer
}

func (a *commandAllocator) keep(b *buffer) {
	a.mu.Lock()
	a.staging = append(a.staging, b)
	a.mu.Unlock()
}

func (a *commandAllocator) dropStaging() {
	a.mu.Lock()
	staging := a.staging
	a.staging = nil
	a.mu.Unlock()
	for _, b := range staging {
		b.Release()
	}
}

func (a *commandAllocator) Reset() error {
	if err := check("vkResetCommandPool", vk.ResetCommandPool(a.device.logical(), a.pool, 0)); err != nil {
		return fmt.Errorf("allocator `%s`: %w", a.label, err)
	}
	a.dropStaging()
	return nil
}

func (a *commandAllocator) Release() {
	a.dropStaging()
	if a.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(a.device.logical(), a.pool, a.device.ctx.Allocator)
		a.pool = vk.NullCommandPool
	}
}

// commandList records into one primary command buffer. Render targets and
// descriptor tables are tracked on the host for the clears that use them.
type commandList struct {
	device *Device
	alloc  *commandAllocator
	label  string
	cb     *VulkanCommandBuffer

	pipeline *pipelineState
	topology metadata.PrimitiveTopology
	heap     metadata.DescriptorHeap
	rtv      metadata.CPUDescriptorHandle
	dsv      *metadata.CPUDescriptorHandle
}

func (l *commandList) recording() {
	if l.cb.State != COMMAND_BUFFER_STATE_RECORDING {
		core.Fatal(core.ErrMisuse, "command list `%s` recorded while closed", l.label)
	}
}

func (l *commandList) Close() error {
	if l.cb.State != COMMAND_BUFFER_STATE_RECORDING {
		return fmt.Errorf("command list `%s` is not open", l.label)
	}
	return l.cb.End()
}

func (l *commandList) Reset(alloc metadata.CommandAllocator) error {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return fmt.Errorf("allocator %T does not belong to the vulkan device", alloc)
	}
	if a != l.alloc {
		l.cb.Free(l.device.ctx, l.alloc.pool)
		cb, err := NewVulkanCommandBuffer(l.device.ctx, a.pool, true)
		if err != nil {
			return err
		}
		l.cb = cb
		l.alloc = a
	} else if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(l.cb.Handle, 0)); err != nil {
		return err
	}
	l.pipeline = nil
	l.heap = nil
	l.dsv = nil
	return l.cb.Begin(false)
}

func (l *commandList) Release() {
	if l.cb.Handle != nil && l.alloc.pool != vk.NullCommandPool {
		l.cb.Free(l.device.ctx, l.alloc.pool)
	}
}

func (l *commandList) texture(res metadata.Resource) *Texture {
	t, ok := res.(*Texture)
	if !ok {
		core.Fatal(core.ErrMisuse, "resource %T does not belong to the vulkan device", res)
	}
	return t
}

func (l *commandList) ResourceBarrier(res metadata.Resource, before, after metadata.ResourceState) {
	l.recording()
	if _, ok := res.(*buffer); ok {
		return
	}
	from, to := layoutFor(before), layoutFor(after)
	if from == to {
		return
	}
	imageBarrier(l.cb.Handle, l.device.ctx.Device.GraphicsQueueIndex, l.texture(res), from, to)
}

func (l *commandList) viewTexture(h metadata.CPUDescriptorHandle, kind descriptorKind) *Texture {
	desc, ok := l.device.readDescriptor(h.Ptr)
	if !ok || desc.kind != kind || desc.texture == nil {
		core.Fatal(core.ErrMisuse, "command list `%s`: handle %#x is not a view of the expected kind", l.label, h.Ptr)
	}
	return l.texture(desc.texture)
}

func (l *commandList) ClearRenderTargetView(rtv metadata.CPUDescriptorHandle, color [4]float32) {
	l.recording()
	t := l.viewTexture(rtv, descriptorRTV)
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	vk.CmdClearColorImage(l.cb.Handle, t.image, vk.ImageLayoutGeneral, &value, 1, []vk.ImageSubresourceRange{t.subresource()})
	l.device.stats.Clears.Inc()
}

func (l *commandList) ClearDepthStencilView(dsv metadata.CPUDescriptorHandle, depth float32) {
	l.recording()
	t := l.viewTexture(dsv, descriptorDSV)
	vk.CmdClearDepthStencilImage(l.cb.Handle, t.image, vk.ImageLayoutGeneral, &vk.ClearDepthStencilValue{Depth: depth}, 1, []vk.ImageSubresourceRange{t.subresource()})
	l.device.stats.Clears.Inc()
}

func (l *commandList) SetViewport(v metadata.Viewport) {
	l.recording()
	vk.CmdSetViewport(l.cb.Handle, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (l *commandList) SetScissorRect(r metadata.Rect) {
	l.recording()
	vk.CmdSetScissor(l.cb.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.Left, Y: r.Top},
		Extent: vk.Extent2D{Width: uint32(r.Width()), Height: uint32(r.Height())},
	}})
}

func (l *commandList) SetRenderTargets(rtv metadata.CPUDescriptorHandle, dsv *metadata.CPUDescriptorHandle) {
	l.recording()
	l.rtv = rtv
	l.dsv = dsv
}

func (l *commandList) SetPipelineState(ps metadata.PipelineState) {
	l.recording()
	p, ok := ps.(*pipelineState)
	if !ok {
		core.Fatal(core.ErrMisuse, "pipeline %T does not belong to the vulkan device", ps)
	}
	l.pipeline = p
	if native := p.pipeline(); native != vk.NullPipeline {
		vk.CmdBindPipeline(l.cb.Handle, vk.PipelineBindPointGraphics, native)
	}
}

func (l *commandList) SetDescriptorHeap(heap metadata.DescriptorHeap) {
	l.recording()
	l.heap = heap
}

func (l *commandList) SetGraphicsRootDescriptorTable(param uint32, base metadata.GPUDescriptorHandle) {
	l.recording()
	if base.Ptr&gpuHandleBit == 0 {
		core.Fatal(core.ErrMisuse, "command list `%s`: table %d bound to a CPU-only handle", l.label, param)
	}
}

func (l *commandList) SetPrimitiveTopology(t metadata.PrimitiveTopology) {
	l.recording()
	l.topology = t
}

func (l *commandList) hostBuffer(b metadata.Buffer) *buffer {
	hb, ok := b.(*buffer)
	if !ok {
		core.Fatal(core.ErrMisuse, "buffer %T does not belong to the vulkan device", b)
	}
	return hb
}

func (l *commandList) SetVertexBuffer(v metadata.VertexBufferView) {
	l.recording()
	vk.CmdBindVertexBuffers(l.cb.Handle, 0, 1, []vk.Buffer{l.hostBuffer(v.Buffer).handle}, []vk.DeviceSize{0})
}

func (l *commandList) SetIndexBuffer(v metadata.IndexBufferView) {
	l.recording()
	vk.CmdBindIndexBuffer(l.cb.Handle, l.hostBuffer(v.Buffer).handle, 0, vk.IndexTypeUint32)
}

func (l *commandList) native() bool {
	return l.pipeline != nil && l.pipeline.pipeline() != vk.NullPipeline
}

func (l *commandList) DrawInstanced(vertexCount, instanceCount uint32) {
	l.recording()
	l.device.stats.Draws.Inc()
	if !l.native() {
		l.device.stats.SkippedDraws.Inc()
		return
	}
	vk.CmdDraw(l.cb.Handle, vertexCount, instanceCount, 0, 0)
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount uint32) {
	l.recording()
	l.device.stats.IndexedDraws.Inc()
	if !l.native() {
		l.device.stats.SkippedDraws.Inc()
		return
	}
	vk.CmdDrawIndexed(l.cb.Handle, indexCount, instanceCount, 0, 0, 0)
}

// UpdateTexture stages pixels in a host buffer owned by the allocator and
// records the copy. dst must be in the copy-destination state.
func (l *commandList) UpdateTexture(dst metadata.Texture, pixels []byte, rowPitch uint32) {
	l.recording()
	t := l.texture(dst)
	desc := t.Desc()
	row := desc.Width * desc.Format.BytesPerPixel()
	if rowPitch < row || uint64(len(pixels)) < uint64(rowPitch)*uint64(desc.Height-1)+uint64(row) {
		core.Fatal(core.ErrMisuse, "texture `%s`: %d bytes with pitch %d do not cover %dx%d", t.label, len(pixels), rowPitch, desc.Width, desc.Height)
	}

	staging, err := newHostBuffer(l.device, uint64(row)*uint64(desc.Height), vk.BufferUsageTransferSrcBit, t.label+"-staging")
	core.Must(err, "UpdateTexture staging buffer")
	for y := uint32(0); y < desc.Height; y++ {
		copy(staging.data[y*row:(y+1)*row], pixels[y*rowPitch:y*rowPitch+row])
	}
	l.alloc.keep(staging)

	vk.CmdCopyBufferToImage(l.cb.Handle, staging.handle, t.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(t.aspect),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
	}})
	l.device.stats.TextureUploads.Inc()
}
