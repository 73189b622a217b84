package software

import (
	"errors"

	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"go.uber.org/atomic"
)

var (
	ErrListOpen   = errors.New("command list is open")
	ErrListClosed = errors.New("command list is closed")
)

type commandAllocator struct {
	device *Device
	label  string
	// lists recorded on this allocator that were submitted but not executed
	inFlight atomic.Int64
}

func (a *commandAllocator) Reset() error {
	if n := a.inFlight.Load(); n > 0 {
		a.device.violation("allocator %s reset with %d list(s) still executing", a.label, n)
	}
	return nil
}

func (a *commandAllocator) Release() {}

type opcode int

const (
	opBarrier opcode = iota
	opClearRTV
	opClearDSV
	opViewport
	opScissor
	opRenderTargets
	opPipeline
	opDescriptorHeap
	opRootTable
	opTopology
	opVertexBuffer
	opIndexBuffer
	opDraw
	opDrawIndexed
	opUpdateTexture
)

type command struct {
	op       opcode
	resource metadata.Resource
	before   metadata.ResourceState
	after    metadata.ResourceState
	handle   uint64
	color    [4]float32
	count    uint32
	pixels   []byte
	pipeline metadata.PipelineState
}

type commandList struct {
	device *Device
	alloc  *commandAllocator
	label  string
	open   bool
	cmds   []command
}

func (l *commandList) Close() error {
	if !l.open {
		return ErrListClosed
	}
	l.open = false
	return nil
}

func (l *commandList) Reset(alloc metadata.CommandAllocator) error {
	if l.open {
		return ErrListOpen
	}
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return errors.New("allocator does not belong to the software device")
	}
	l.alloc = a
	l.open = true
	// batches still queued keep the old slice
	l.cmds = nil
	return nil
}

func (l *commandList) Release() {}

func (l *commandList) record(c command) {
	if !l.open {
		l.device.violation("record into closed list %s", l.label)
		return
	}
	l.cmds = append(l.cmds, c)
}

func (l *commandList) ResourceBarrier(res metadata.Resource, before, after metadata.ResourceState) {
	l.record(command{op: opBarrier, resource: res, before: before, after: after})
}

func (l *commandList) ClearRenderTargetView(rtv metadata.CPUDescriptorHandle, color [4]float32) {
	l.record(command{op: opClearRTV, handle: rtv.Ptr, color: color})
}

func (l *commandList) ClearDepthStencilView(dsv metadata.CPUDescriptorHandle, depth float32) {
	l.record(command{op: opClearDSV, handle: dsv.Ptr, color: [4]float32{depth}})
}

func (l *commandList) SetViewport(v metadata.Viewport) {
	l.record(command{op: opViewport})
}

func (l *commandList) SetScissorRect(r metadata.Rect) {
	l.record(command{op: opScissor})
}

func (l *commandList) SetRenderTargets(rtv metadata.CPUDescriptorHandle, dsv *metadata.CPUDescriptorHandle) {
	l.record(command{op: opRenderTargets, handle: rtv.Ptr})
}

func (l *commandList) SetPipelineState(ps metadata.PipelineState) {
	l.record(command{op: opPipeline, pipeline: ps})
}

func (l *commandList) SetDescriptorHeap(heap metadata.DescriptorHeap) {
	if !heap.Desc().ShaderVisible {
		l.device.violation("heap `%s` bound to %s is not shader visible", heap.Desc().Label, l.label)
	}
	l.record(command{op: opDescriptorHeap, handle: heap.CPUStart().Ptr})
}

func (l *commandList) SetGraphicsRootDescriptorTable(param uint32, base metadata.GPUDescriptorHandle) {
	l.record(command{op: opRootTable, handle: base.Ptr, count: param})
}

func (l *commandList) SetPrimitiveTopology(t metadata.PrimitiveTopology) {
	l.record(command{op: opTopology, count: uint32(t)})
}

func (l *commandList) SetVertexBuffer(v metadata.VertexBufferView) {
	l.record(command{op: opVertexBuffer, resource: v.Buffer, count: v.Size})
}

func (l *commandList) SetIndexBuffer(v metadata.IndexBufferView) {
	l.record(command{op: opIndexBuffer, resource: v.Buffer, count: v.Size})
}

func (l *commandList) DrawInstanced(vertexCount, instanceCount uint32) {
	l.record(command{op: opDraw, count: vertexCount * instanceCount})
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount uint32) {
	l.record(command{op: opDrawIndexed, count: indexCount * instanceCount})
}

func (l *commandList) UpdateTexture(dst metadata.Texture, pixels []byte, rowPitch uint32) {
	snapshot := make([]byte, len(pixels))
	copy(snapshot, pixels)
	l.record(command{op: opUpdateTexture, resource: dst, pixels: snapshot, count: rowPitch})
}

// execute runs cmds as the device would. It is only called from the queue.
func (d *Device) execute(label string, cmds []command) {
	var (
		pipeline metadata.PipelineState
		heapID   uint64
		tables   int
	)
	for _, c := range cmds {
		switch c.op {
		case opBarrier:
			tex, ok := c.resource.(*Texture)
			if !ok {
				continue
			}
			tex.mu.Lock()
			if tex.state != c.before {
				d.violation("barrier on %s expects state %d but resource is in %d", tex.label, c.before, tex.state)
			}
			tex.state = c.after
			tex.mu.Unlock()
		case opClearRTV:
			d.stats.Clears.Inc()
			if desc, ok := d.readDescriptor(c.handle); ok {
				if tex, ok := desc.texture.(*Texture); ok {
					tex.mu.Lock()
					if tex.state != metadata.ResourceStateRenderTarget {
						d.violation("clear of %s outside render target state", tex.label)
					}
					tex.clear = c.color
					tex.mu.Unlock()
				}
			}
		case opClearDSV:
			d.stats.Clears.Inc()
		case opPipeline:
			pipeline = c.pipeline
		case opDescriptorHeap:
			heapID = c.handle >> 32
		case opRootTable:
			if c.handle&gpuHandleBit == 0 {
				d.violation("root table in %s uses a CPU handle", label)
				continue
			}
			if (c.handle&^gpuHandleBit)>>32 != heapID {
				d.violation("root table in %s points outside the bound heap", label)
				continue
			}
			desc, ok := d.readDescriptor(c.handle)
			if ok && desc.kind == descriptorEmpty {
				d.violation("root table in %s references an empty descriptor", label)
			}
			tables++
		case opDraw, opDrawIndexed:
			if pipeline == nil {
				d.violation("draw in %s without a pipeline", label)
			}
			if tables == 0 {
				d.violation("draw in %s without descriptor tables", label)
			}
			if c.op == opDraw {
				d.stats.Draws.Inc()
			} else {
				d.stats.IndexedDraws.Inc()
			}
		case opUpdateTexture:
			tex, ok := c.resource.(*Texture)
			if !ok {
				continue
			}
			tex.mu.Lock()
			if tex.state != metadata.ResourceStateCopyDest {
				d.violation("upload to %s outside copy-dest state", tex.label)
			}
			copy(tex.pixels, c.pixels)
			tex.mu.Unlock()
			d.stats.TextureUploads.Inc()
		}
	}
}
