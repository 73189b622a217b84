package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type descriptorKind int

const (
	descriptorEmpty descriptorKind = iota
	descriptorCBV
	descriptorSRV
	descriptorRTV
	descriptorDSV
)

type descriptor struct {
	kind    descriptorKind
	address metadata.GPUAddress
	size    uint32
	texture metadata.Texture
}

type descriptorHeap struct {
	device *Device
	id     uint32
	desc   metadata.DescriptorHeapDesc

	mu    sync.Mutex
	slots []descriptor
}

func (h *descriptorHeap) Desc() metadata.DescriptorHeapDesc {
	return h.desc
}

func (h *descriptorHeap) CPUStart() metadata.CPUDescriptorHandle {
	return metadata.CPUDescriptorHandle{Ptr: uint64(h.id) << 32}
}

func (h *descriptorHeap) GPUStart() metadata.GPUDescriptorHandle {
	if !h.desc.ShaderVisible {
		return metadata.GPUDescriptorHandle{}
	}
	return metadata.GPUDescriptorHandle{Ptr: gpuHandleBit | uint64(h.id)<<32}
}

func (h *descriptorHeap) Release() {
	h.device.releaseHeap(h.id)
}

// buffer is host-visible coherent memory, mapped for its whole lifetime.
type buffer struct {
	device  *Device
	label   string
	handle  vk.Buffer
	memory  vk.DeviceMemory
	data    []byte
	address metadata.GPUAddress
	once    sync.Once
}

func newHostBuffer(d *Device, size uint64, usage vk.BufferUsageFlagBits, label string) (*buffer, error) {
	dev := d.logical()
	var handle vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(dev, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}, d.ctx.Allocator, &handle)); err != nil {
		return nil, fmt.Errorf("buffer `%s`: %w", label, err)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, handle, &reqs)
	mem, err := d.ctx.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(dev, handle, d.ctx.Allocator)
		return nil, fmt.Errorf("buffer `%s`: %w", label, err)
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(dev, handle, mem, 0)); err != nil {
		vk.FreeMemory(dev, mem, d.ctx.Allocator)
		vk.DestroyBuffer(dev, handle, d.ctx.Allocator)
		return nil, err
	}

	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(dev, mem, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
		vk.FreeMemory(dev, mem, d.ctx.Allocator)
		vk.DestroyBuffer(dev, handle, d.ctx.Allocator)
		return nil, err
	}

	return &buffer{
		device:  d,
		label:   label,
		handle:  handle,
		memory:  mem,
		data:    unsafe.Slice((*byte)(ptr), size),
		address: d.allocAddress(size),
	}, nil
}

func (b *buffer) Label() string                   { return b.label }
func (b *buffer) GPUAddress() metadata.GPUAddress { return b.address }
func (b *buffer) Size() uint64                    { return uint64(len(b.data)) }
func (b *buffer) Bytes() []byte                   { return b.data }

func (b *buffer) Release() {
	b.once.Do(func() {
		dev := b.device.logical()
		vk.UnmapMemory(dev, b.memory)
		b.data = nil
		vk.DestroyBuffer(dev, b.handle, b.device.ctx.Allocator)
		vk.FreeMemory(dev, b.memory, b.device.ctx.Allocator)
	})
}

// layoutFor maps a resource state to the image layout that serves it.
// Render targets stay in GENERAL so transfer clears need no extra barrier.
func layoutFor(state metadata.ResourceState) vk.ImageLayout {
	switch state {
	case metadata.ResourceStateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ResourceStatePixelShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal
	default:
		return vk.ImageLayoutGeneral
	}
}

// Texture is a 2D optimal-tiling image in device-local memory.
type Texture struct {
	device *Device
	label  string
	desc   metadata.TextureDesc
	image  vk.Image
	memory vk.DeviceMemory
	aspect vk.ImageAspectFlagBits
	once   sync.Once
}

func (d *Device) format(f metadata.Format) (vk.Format, vk.ImageAspectFlagBits) {
	if f == metadata.FormatD32 {
		return d.ctx.Device.DepthFormat, vk.ImageAspectDepthBit
	}
	return vk.FormatR8g8b8a8Unorm, vk.ImageAspectColorBit
}

func newTexture(d *Device, desc metadata.TextureDesc, usage vk.ImageUsageFlagBits, label string, initial metadata.ResourceState) (*Texture, error) {
	dev := d.logical()
	format, aspect := d.format(desc.Format)

	var image vk.Image
	if err := check("vkCreateImage", vk.CreateImage(dev, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, d.ctx.Allocator, &image)); err != nil {
		return nil, fmt.Errorf("texture `%s`: %w", label, err)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, image, &reqs)
	mem, err := d.ctx.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(dev, image, d.ctx.Allocator)
		return nil, fmt.Errorf("texture `%s`: %w", label, err)
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(dev, image, mem, 0)); err != nil {
		vk.FreeMemory(dev, mem, d.ctx.Allocator)
		vk.DestroyImage(dev, image, d.ctx.Allocator)
		return nil, err
	}

	t := &Texture{device: d, label: label, desc: desc, image: image, memory: mem, aspect: aspect}
	if err := d.transitionOnce(t, vk.ImageLayoutUndefined, layoutFor(initial)); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func (t *Texture) Label() string              { return t.label }
func (t *Texture) Desc() metadata.TextureDesc { return t.desc }

func (t *Texture) Release() {
	t.once.Do(func() {
		dev := t.device.logical()
		vk.DestroyImage(dev, t.image, t.device.ctx.Allocator)
		vk.FreeMemory(dev, t.memory, t.device.ctx.Allocator)
	})
}

func (t *Texture) subresource() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(t.aspect),
		LevelCount: 1,
		LayerCount: 1,
	}
}

// transitionOnce moves a new image out of UNDEFINED and waits for it.
func (d *Device) transitionOnce(t *Texture, from, to vk.ImageLayout) error {
	return d.ctx.Locks.SafeCall(CommandPoolManagement, func() error {
		cb, err := AllocateAndBeginSingleUse(d.ctx, d.setupPool)
		if err != nil {
			return err
		}
		imageBarrier(cb.Handle, d.ctx.Device.GraphicsQueueIndex, t, from, to)
		return cb.EndSingleUse(d.ctx, d.setupPool, d.ctx.Device.GraphicsQueue)
	})
}

const memoryAccess = vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)

func imageBarrier(cmd vk.CommandBuffer, family uint32, t *Texture, from, to vk.ImageLayout) {
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       memoryAccess,
			DstAccessMask:       memoryAccess,
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: family,
			DstQueueFamilyIndex: family,
			Image:               t.image,
			SubresourceRange:    t.subresource(),
		}})
}

// pipelineState is a renderer pipeline slot. Draws recorded while no
// native pipeline is attached are counted and skipped.
type pipelineState struct {
	device *Device
	desc   metadata.PipelineStateDesc

	mu     sync.RWMutex
	native vk.Pipeline
}

func (p *pipelineState) Kind() metadata.PipelineKind { return p.desc.Kind }

// AttachPipeline binds a compiled pipeline to the slot. The previous one is
// returned so the caller can destroy it once the device is idle.
func AttachPipeline(ps metadata.PipelineState, native vk.Pipeline) (vk.Pipeline, error) {
	p, ok := ps.(*pipelineState)
	if !ok {
		return vk.NullPipeline, fmt.Errorf("pipeline %T does not belong to the vulkan device", ps)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.native
	p.native = native
	return old, nil
}

func (p *pipelineState) pipeline() vk.Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.native
}

func (p *pipelineState) Release() {
	p.mu.Lock()
	native := p.native
	p.native = vk.NullPipeline
	p.mu.Unlock()
	if native != vk.NullPipeline {
		vk.DestroyPipeline(p.device.logical(), native, p.device.ctx.Allocator)
	}
}
