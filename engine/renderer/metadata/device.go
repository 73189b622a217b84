package metadata

import (
	"context"
)

// GPUAddress is a virtual address of buffer memory as seen by the device.
type GPUAddress uint64

// CPUDescriptorHandle addresses one descriptor slot for CPU-side writes.
type CPUDescriptorHandle struct {
	Ptr uint64
}

// Offset moves the handle by n slots of incrementSize bytes.
func (h CPUDescriptorHandle) Offset(n int, incrementSize uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: h.Ptr + uint64(n)*uint64(incrementSize)}
}

// GPUDescriptorHandle addresses a descriptor slot in a shader-visible heap.
type GPUDescriptorHandle struct {
	Ptr uint64
}

func (h GPUDescriptorHandle) Offset(n int, incrementSize uint32) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: h.Ptr + uint64(n)*uint64(incrementSize)}
}

type DescriptorHeapType int

const (
	DescriptorHeapTypeCBVSRVUAV DescriptorHeapType = iota
	DescriptorHeapTypeRTV
	DescriptorHeapTypeDSV
)

func (t DescriptorHeapType) String() string {
	switch t {
	case DescriptorHeapTypeCBVSRVUAV:
		return "CBV_SRV_UAV"
	case DescriptorHeapTypeRTV:
		return "RTV"
	case DescriptorHeapTypeDSV:
		return "DSV"
	}
	return "UNKNOWN"
}

type DescriptorHeapDesc struct {
	Type           DescriptorHeapType
	NumDescriptors int
	ShaderVisible  bool
	Label          string
}

type ResourceState int

const (
	ResourceStateCommon ResourceState = iota
	ResourceStatePresent
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateCopyDest
	ResourceStatePixelShaderResource
)

type Format int

const (
	FormatRGBA8 Format = iota
	FormatD32
)

// BytesPerPixel of formats usable for texture uploads.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatRGBA8, FormatD32:
		return 4
	}
	return 0
}

type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyLineList
)

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

func (r Rect) Width() int32 {
	return r.Right - r.Left
}

func (r Rect) Height() int32 {
	return r.Bottom - r.Top
}

// Resource is any device object backed by memory.
type Resource interface {
	Label() string
	Release()
}

// Buffer is device memory holding vertices or indices.
type Buffer interface {
	Resource
	GPUAddress() GPUAddress
	Size() uint64
}

// UploadBuffer is a buffer persistently mapped into CPU memory. Writes to
// Bytes are visible to the device without an explicit flush.
type UploadBuffer interface {
	Buffer
	Bytes() []byte
}

type TextureDesc struct {
	Width  uint32
	Height uint32
	Format Format
}

type Texture interface {
	Resource
	Desc() TextureDesc
}

type VertexBufferView struct {
	Buffer Buffer
	Stride uint32
	Size   uint32
}

type IndexBufferView struct {
	Buffer Buffer
	Size   uint32
}

type PipelineKind int

const (
	PipelineKindMesh PipelineKind = iota
	PipelineKindSprite
	PipelineKindLine
	PipelineKindCount
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineKindMesh:
		return "mesh"
	case PipelineKindSprite:
		return "sprite"
	case PipelineKindLine:
		return "line"
	}
	return "unknown"
}

type PipelineStateDesc struct {
	Kind     PipelineKind
	Topology PrimitiveTopology
	Label    string
}

type PipelineState interface {
	Kind() PipelineKind
	Release()
}

// Device creates every object the renderer records or submits with. Device
// methods must be safe to call from several render workers at once.
type Device interface {
	CreateCommandAllocator(label string) (CommandAllocator, error)
	// CreateCommandList returns a list already open for recording on alloc.
	CreateCommandList(alloc CommandAllocator, label string) (CommandList, error)
	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)
	DescriptorHandleIncrementSize(t DescriptorHeapType) uint32
	CreateUploadBuffer(size uint64, label string) (UploadBuffer, error)
	// CreateBuffer creates an immutable buffer initialized with data.
	CreateBuffer(data []byte, label string) (Buffer, error)
	CreateTexture(desc TextureDesc, label string) (Texture, error)
	CreateConstantBufferView(addr GPUAddress, size uint32, dest CPUDescriptorHandle)
	CreateShaderResourceView(tex Texture, dest CPUDescriptorHandle)
	CopyDescriptorsSimple(n int, dest, src CPUDescriptorHandle, t DescriptorHeapType)
	CreatePipelineState(desc PipelineStateDesc) (PipelineState, error)
	CreateFence(initial uint64) (Fence, error)
}

type CommandAllocator interface {
	// Reset reclaims the memory of every list recorded on the allocator. The
	// device must have finished executing those lists.
	Reset() error
	Release()
}

type CommandList interface {
	Close() error
	// Reset reopens the list for recording on alloc.
	Reset(alloc CommandAllocator) error
	Release()

	ResourceBarrier(res Resource, before, after ResourceState)
	ClearRenderTargetView(rtv CPUDescriptorHandle, color [4]float32)
	ClearDepthStencilView(dsv CPUDescriptorHandle, depth float32)
	SetViewport(v Viewport)
	SetScissorRect(r Rect)
	SetRenderTargets(rtv CPUDescriptorHandle, dsv *CPUDescriptorHandle)
	SetPipelineState(ps PipelineState)
	SetDescriptorHeap(heap DescriptorHeap)
	SetGraphicsRootDescriptorTable(param uint32, base GPUDescriptorHandle)
	SetPrimitiveTopology(t PrimitiveTopology)
	SetVertexBuffer(v VertexBufferView)
	SetIndexBuffer(v IndexBufferView)
	DrawInstanced(vertexCount, instanceCount uint32)
	DrawIndexedInstanced(indexCount, instanceCount uint32)
	// UpdateTexture copies pixels into dst when the list executes. The
	// pixels are captured at record time.
	UpdateTexture(dst Texture, pixels []byte, rowPitch uint32)
}

type CommandQueue interface {
	// ExecuteCommandLists submits closed lists in order as one batch.
	ExecuteCommandLists(lists []CommandList) error
	// Signal sets fence to value once every previously submitted batch completed.
	Signal(fence Fence, value uint64) error
}

// Fence is a monotonically increasing counter written by the device.
type Fence interface {
	CompletedValue() uint64
	// Wait blocks until CompletedValue() >= value or ctx is done.
	Wait(ctx context.Context, value uint64) error
	Release()
}

type DescriptorHeap interface {
	Desc() DescriptorHeapDesc
	CPUStart() CPUDescriptorHandle
	// GPUStart is the zero handle for heaps that are not shader visible.
	GPUStart() GPUDescriptorHandle
	Release()
}

type PresentFlags uint32

const (
	PresentAllowTearing PresentFlags = 1 << iota
)

// Presenter owns the back buffers and flips them.
type Presenter interface {
	Present(syncInterval uint32, flags PresentFlags) error
	CurrentBackBufferIndex() int
	BufferCount() int
	BackBuffer(i int) Texture
	RenderTargetView(i int) CPUDescriptorHandle
	DepthStencil() Texture
	DepthStencilView() CPUDescriptorHandle
	Size() (width, height uint32)
}
