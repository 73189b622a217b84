package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"go.uber.org/atomic"
)

const (
	descriptorIncrement uint32 = 32
	gpuHandleBit        uint64 = 1 << 63
	addressAlignment    uint64 = 64 * 1024
)

// VulkanDevice is the physical and logical device pair. The backend renders
// offscreen, so only a graphics queue is requested.
type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	GraphicsQueue      vk.Queue

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics    bool
	Transfer    bool
	DiscreteGPU bool
}

func DeviceCreate(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	context.Device = &VulkanDevice{}
	if err := SelectPhysicalDevice(context, requirements); err != nil {
		return err
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: context.Device.GraphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var device vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device)); err != nil {
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, context.Device.GraphicsQueueIndex, 0, &queue)
	context.Device.GraphicsQueue = queue

	if !DeviceDetectDepthFormat(context.Device) {
		DeviceDestroy(context)
		return fmt.Errorf("failed to find a supported depth format")
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	if context.Device.LogicalDevice != nil {
		core.LogDebug("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}
	context.Device.PhysicalDevice = nil
	context.Device.GraphicsQueue = nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	var physicalDeviceCount uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	for _, candidate := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		queueIndex, ok := PhysicalDeviceMeetsRequirements(candidate, &properties, requirements)
		if !ok {
			continue
		}

		end := FindFirstZeroInByteArray(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", string(properties.DeviceName[:end]))
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		default:
			core.LogInfo("GPU type is Unknown.")
		}
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
		memory.Deref()

		context.Device.PhysicalDevice = candidate
		context.Device.GraphicsQueueIndex = queueIndex
		context.Device.Properties = properties
		context.Device.Memory = memory
		return nil
	}
	return fmt.Errorf("no physical devices were found which meet the requirements")
}

// PhysicalDeviceMeetsRequirements returns the queue family able to serve
// every requested capability.
func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, requirements VulkanPhysicalDeviceRequirements) (uint32, bool) {
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return 0, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// graphics queues implicitly support transfer
	for i, qf := range queueFamilies {
		qf.Deref()
		if requirements.Graphics && qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if requirements.Transfer && !requirements.Graphics && qf.QueueFlags&vk.QueueFlags(vk.QueueTransferBit) == 0 {
			continue
		}
		return uint32(i), true
	}
	return 0, false
}

// Stats counts what the device recorded and submitted.
type Stats struct {
	Batches        atomic.Int64
	ListsExecuted  atomic.Int64
	Draws          atomic.Int64
	IndexedDraws   atomic.Int64
	SkippedDraws   atomic.Int64
	Clears         atomic.Int64
	TextureUploads atomic.Int64
	Presents       atomic.Int64
}

// Device implements metadata.Device on a logical Vulkan device. Descriptor
// heaps live in host memory since descriptor sets are bound by pipelines
// created outside the renderer.
type Device struct {
	ctx *VulkanContext

	// setupPool records the one-shot layout transitions of new images.
	setupPool vk.CommandPool

	mu          sync.RWMutex
	heaps       map[uint32]*descriptorHeap
	nextHeap    atomic.Uint32
	nextAddress atomic.Uint64

	stats Stats
}

func newDevice(ctx *VulkanContext) (*Device, error) {
	d := &Device{
		ctx:   ctx,
		heaps: make(map[uint32]*descriptorHeap),
	}
	d.nextAddress.Store(addressAlignment)
	pool, err := createCommandPool(ctx)
	if err != nil {
		return nil, err
	}
	d.setupPool = pool
	return d, nil
}

func (d *Device) Stats() *Stats {
	return &d.stats
}

func (d *Device) logical() vk.Device {
	return d.ctx.Device.LogicalDevice
}

func (d *Device) release() {
	if d.setupPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.logical(), d.setupPool, d.ctx.Allocator)
		d.setupPool = vk.NullCommandPool
	}
}

func (d *Device) allocAddress(size uint64) metadata.GPUAddress {
	span := (size + addressAlignment - 1) / addressAlignment * addressAlignment
	if span == 0 {
		span = addressAlignment
	}
	return metadata.GPUAddress(d.nextAddress.Add(span) - span)
}

func (d *Device) CreateCommandAllocator(name string) (metadata.CommandAllocator, error) {
	pool, err := createCommandPool(d.ctx)
	if err != nil {
		return nil, err
	}
	return &commandAllocator{device: d, label: name, pool: pool}, nil
}

func (d *Device) CreateCommandList(alloc metadata.CommandAllocator, name string) (metadata.CommandList, error) {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return nil, fmt.Errorf("allocator %T does not belong to the vulkan device", alloc)
	}
	cb, err := NewVulkanCommandBuffer(d.ctx, a.pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(false); err != nil {
		cb.Free(d.ctx, a.pool)
		return nil, err
	}
	return &commandList{device: d, alloc: a, label: name, cb: cb}, nil
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
	return newHostBuffer(d, size, vk.BufferUsageUniformBufferBit|vk.BufferUsageTransferSrcBit, name)
}

func (d *Device) CreateBuffer(data []byte, name string) (metadata.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("buffer `%s` has no data", name)
	}
	b, err := newHostBuffer(d, uint64(len(data)), vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit, name)
	if err != nil {
		return nil, err
	}
	copy(b.data, data)
	return b, nil
}

func (d *Device) CreateTexture(desc metadata.TextureDesc, name string) (metadata.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture `%s` has zero extent", name)
	}
	return newTexture(d, desc, vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit, name, metadata.ResourceStatePixelShaderResource)
}

func (d *Device) CreateConstantBufferView(addr metadata.GPUAddress, size uint32, dest metadata.CPUDescriptorHandle) {
	if size%256 != 0 {
		core.LogWarn("constant buffer view size %d is not 256-byte aligned", size)
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

// CreatePipelineState registers the pipeline slot. Native pipelines are
// attached with AttachPipeline once their shaders are compiled.
func (d *Device) CreatePipelineState(desc metadata.PipelineStateDesc) (metadata.PipelineState, error) {
	if desc.Kind < 0 || desc.Kind >= metadata.PipelineKindCount {
		return nil, fmt.Errorf("unknown pipeline kind %d", desc.Kind)
	}
	return &pipelineState{device: d, desc: desc}, nil
}

func (d *Device) CreateFence(initial uint64) (metadata.Fence, error) {
	return newFence(d, initial), nil
}

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
		core.Fatal(core.ErrMisuse, "descriptor write to invalid handle %#x", ptr)
	}
	h.mu.Lock()
	h.slots[idx] = desc
	h.mu.Unlock()
}

func (d *Device) readDescriptor(ptr uint64) (descriptor, bool) {
	h, idx, ok := d.resolve(ptr)
	if !ok {
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
