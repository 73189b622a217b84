package software

import (
	"fmt"

	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// Presenter flips a ring of back buffers. Each Present is queued behind the
// work already submitted so the state checks see the executed barriers.
type Presenter struct {
	device *Device
	queue  *Queue

	rtvHeap metadata.DescriptorHeap
	dsvHeap metadata.DescriptorHeap
	buffers []*Texture
	depth   *Texture
	index   int
	width   uint32
	height  uint32

	LastSyncInterval uint32
	LastFlags        metadata.PresentFlags
}

func NewPresenter(device *Device, queue *Queue, count int, width, height uint32) (*Presenter, error) {
	if count < 2 {
		return nil, fmt.Errorf("presenter needs at least 2 back buffers, got %d", count)
	}
	rtv, err := device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeRTV,
		NumDescriptors: count,
		Label:          "swapchain-rtv",
	})
	if err != nil {
		return nil, err
	}
	dsv, err := device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeDSV,
		NumDescriptors: 1,
		Label:          "swapchain-dsv",
	})
	if err != nil {
		return nil, err
	}
	p := &Presenter{
		device:  device,
		queue:   queue,
		rtvHeap: rtv,
		dsvHeap: dsv,
		width:   width,
		height:  height,
	}
	desc := metadata.TextureDesc{Width: width, Height: height, Format: metadata.FormatRGBA8}
	for i := 0; i < count; i++ {
		buf := newTexture(desc, label(fmt.Sprintf("backbuffer-%d", i)), metadata.ResourceStatePresent)
		p.buffers = append(p.buffers, buf)
		device.writeDescriptor(p.RenderTargetView(i).Ptr, descriptor{kind: descriptorRTV, texture: buf})
	}
	p.depth = newTexture(metadata.TextureDesc{Width: width, Height: height, Format: metadata.FormatD32},
		label("depth"), metadata.ResourceStateDepthWrite)
	device.writeDescriptor(p.DepthStencilView().Ptr, descriptor{kind: descriptorDSV, texture: p.depth})
	return p, nil
}

func (p *Presenter) Present(syncInterval uint32, flags metadata.PresentFlags) error {
	buf := p.buffers[p.index]
	p.LastSyncInterval = syncInterval
	p.LastFlags = flags
	p.index = (p.index + 1) % len(p.buffers)
	return p.queue.enqueue(queueItem{present: func() {
		if s := buf.State(); s != metadata.ResourceStatePresent {
			p.device.violation("present of %s in state %d", buf.label, s)
		}
		p.device.stats.Presents.Inc()
	}})
}

func (p *Presenter) CurrentBackBufferIndex() int {
	return p.index
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
