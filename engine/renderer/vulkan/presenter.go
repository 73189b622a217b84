package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// Presenter owns offscreen back buffers in place of a swapchain. Present
// rotates the current index; the images can be read back by the embedder.
type Presenter struct {
	device *Device
	width  uint32
	height uint32

	buffers []*Texture
	depth   *Texture
	rtvHeap metadata.DescriptorHeap
	dsvHeap metadata.DescriptorHeap
	current int
}

func newPresenter(d *Device, count int, width, height uint32) (*Presenter, error) {
	if count < 1 {
		return nil, fmt.Errorf("presenter needs at least one back buffer")
	}
	p := &Presenter{device: d, width: width, height: height}

	var err error
	p.rtvHeap, err = d.CreateDescriptorHeap(metadata.DescriptorHeapDesc{Type: metadata.DescriptorHeapTypeRTV, NumDescriptors: count, Label: "back-buffer-rtv"})
	if err != nil {
		return nil, err
	}
	p.dsvHeap, err = d.CreateDescriptorHeap(metadata.DescriptorHeapDesc{Type: metadata.DescriptorHeapTypeDSV, NumDescriptors: 1, Label: "depth-dsv"})
	if err != nil {
		p.Release()
		return nil, err
	}

	colorUsage := vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit
	for i := 0; i < count; i++ {
		t, err := newTexture(d, metadata.TextureDesc{Width: width, Height: height, Format: metadata.FormatRGBA8},
			colorUsage, fmt.Sprintf("back-buffer-%d", i), metadata.ResourceStatePresent)
		if err != nil {
			p.Release()
			return nil, err
		}
		p.buffers = append(p.buffers, t)
		d.writeDescriptor(p.RenderTargetView(i).Ptr, descriptor{kind: descriptorRTV, texture: t})
	}

	p.depth, err = newTexture(d, metadata.TextureDesc{Width: width, Height: height, Format: metadata.FormatD32},
		vk.ImageUsageDepthStencilAttachmentBit|vk.ImageUsageTransferDstBit, "depth", metadata.ResourceStateDepthWrite)
	if err != nil {
		p.Release()
		return nil, err
	}
	d.writeDescriptor(p.DepthStencilView().Ptr, descriptor{kind: descriptorDSV, texture: p.depth})
	return p, nil
}

func (p *Presenter) Present(syncInterval uint32, flags metadata.PresentFlags) error {
	p.current = (p.current + 1) % len(p.buffers)
	p.device.stats.Presents.Inc()
	core.LogDebug("offscreen present (sync %d, flags %d) -> buffer %d", syncInterval, flags, p.current)
	return nil
}

func (p *Presenter) CurrentBackBufferIndex() int {
	return p.current
}

func (p *Presenter) BufferCount() int {
	return len(p.buffers)
}

func (p *Presenter) BackBuffer(i int) metadata.Texture {
	return p.buffers[i]
}

func (p *Presenter) RenderTargetView(i int) metadata.CPUDescriptorHandle {
	return p.rtvHeap.CPUStart().Offset(i, descriptorIncrement)
}

func (p *Presenter) DepthStencil() metadata.Texture {
	return p.depth
}

func (p *Presenter) DepthStencilView() metadata.CPUDescriptorHandle {
	return p.dsvHeap.CPUStart()
}

func (p *Presenter) Size() (uint32, uint32) {
	return p.width, p.height
}

// Release destroys the back buffers. The device must be idle.
func (p *Presenter) Release() {
	for _, t := range p.buffers {
		t.Release()
	}
	p.buffers = nil
	if p.depth != nil {
		p.depth.Release()
		p.depth = nil
	}
	if p.rtvHeap != nil {
		p.rtvHeap.Release()
	}
	if p.dsvHeap != nil {
		p.dsvHeap.Release()
	}
}
