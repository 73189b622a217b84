package software

import (
	"sync"

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

type buffer struct {
	label   string
	data    []byte
	address metadata.GPUAddress
}

func (b *buffer) Label() string                   { return b.label }
func (b *buffer) Release()                        {}
func (b *buffer) GPUAddress() metadata.GPUAddress { return b.address }
func (b *buffer) Size() uint64                    { return uint64(len(b.data)) }
func (b *buffer) Bytes() []byte                   { return b.data }

// Texture is the software texture. Its pixels are written when an upload
// executes on the queue.
type Texture struct {
	label string
	desc  metadata.TextureDesc

	mu     sync.Mutex
	pixels []byte
	state  metadata.ResourceState
	clear  [4]float32
}

func newTexture(desc metadata.TextureDesc, label string, state metadata.ResourceState) *Texture {
	return &Texture{
		label:  label,
		desc:   desc,
		pixels: make([]byte, desc.Width*desc.Height*desc.Format.BytesPerPixel()),
		state:  state,
	}
}

func (t *Texture) Label() string              { return t.label }
func (t *Texture) Release()                   {}
func (t *Texture) Desc() metadata.TextureDesc { return t.desc }

// Pixels returns a copy of the texture contents.
func (t *Texture) Pixels() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.pixels))
	copy(out, t.pixels)
	return out
}

// State is the resource state after the last executed barrier.
func (t *Texture) State() metadata.ResourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ClearColor is the color of the last executed clear.
func (t *Texture) ClearColor() [4]float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clear
}

type pipelineState struct {
	desc  metadata.PipelineStateDesc
	label string
}

func (p *pipelineState) Kind() metadata.PipelineKind { return p.desc.Kind }
func (p *pipelineState) Release()                    {}
