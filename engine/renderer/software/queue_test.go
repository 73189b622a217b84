package software

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	device *Device
	queue  *Queue
	heap   metadata.DescriptorHeap
	pso    metadata.PipelineState
}

func newHarness(t *testing.T, manual bool) *harness {
	t.Helper()
	d := NewDevice()
	q := NewQueue(d, QueueConfig{Manual: manual, Depth: 8})
	t.Cleanup(q.Close)
	heap, err := d.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeCBVSRVUAV,
		NumDescriptors: 4,
		ShaderVisible:  true,
		Label:          "test",
	})
	require.NoError(t, err)
	pso, err := d.CreatePipelineState(metadata.PipelineStateDesc{Kind: metadata.PipelineKindMesh})
	require.NoError(t, err)
	return &harness{device: d, queue: q, heap: heap, pso: pso}
}

// recordDraw records a valid draw into a fresh list and closes it.
func (h *harness) recordDraw(t *testing.T, alloc metadata.CommandAllocator) metadata.CommandList {
	t.Helper()
	cb, err := h.device.CreateUploadBuffer(256, "cb")
	require.NoError(t, err)
	h.device.CreateConstantBufferView(cb.GPUAddress(), 256, h.heap.CPUStart())

	l, err := h.device.CreateCommandList(alloc, "list")
	require.NoError(t, err)
	l.SetPipelineState(h.pso)
	l.SetDescriptorHeap(h.heap)
	l.SetGraphicsRootDescriptorTable(0, h.heap.GPUStart())
	l.DrawInstanced(3, 1)
	require.NoError(t, l.Close())
	return l
}

func TestManualQueueRunsInOrder(t *testing.T) {
	h := newHarness(t, true)
	alloc, _ := h.device.CreateCommandAllocator("alloc")
	fence := NewFence(0)

	require.NoError(t, h.queue.ExecuteCommandLists([]metadata.CommandList{h.recordDraw(t, alloc)}))
	require.NoError(t, h.queue.Signal(fence, 1))
	assert.Equal(t, 2, h.queue.Pending())
	assert.Equal(t, uint64(0), fence.CompletedValue())

	require.True(t, h.queue.Step())
	assert.Equal(t, int64(1), h.device.Stats().Draws.Load())
	assert.Equal(t, uint64(0), fence.CompletedValue())

	require.True(t, h.queue.Step())
	assert.Equal(t, uint64(1), fence.CompletedValue())
	assert.False(t, h.queue.Step())
	assert.Empty(t, h.device.Violations())
}

func TestAsyncQueueSignalsFence(t *testing.T) {
	h := newHarness(t, false)
	alloc, _ := h.device.CreateCommandAllocator("alloc")
	fence := NewFence(0)

	require.NoError(t, h.queue.ExecuteCommandLists([]metadata.CommandList{h.recordDraw(t, alloc)}))
	require.NoError(t, h.queue.Signal(fence, 7))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fence.Wait(ctx, 7))
	assert.Equal(t, int64(1), h.device.Stats().Batches.Load())
}

func TestOpenListIsRejected(t *testing.T) {
	h := newHarness(t, true)
	alloc, _ := h.device.CreateCommandAllocator("alloc")
	l, _ := h.device.CreateCommandList(alloc, "open")
	err := h.queue.ExecuteCommandLists([]metadata.CommandList{l})
	assert.ErrorIs(t, err, ErrListOpen)
}

func TestAllocatorResetWhileInFlightIsReported(t *testing.T) {
	h := newHarness(t, true)
	alloc, _ := h.device.CreateCommandAllocator("alloc")
	require.NoError(t, h.queue.ExecuteCommandLists([]metadata.CommandList{h.recordDraw(t, alloc)}))

	require.NoError(t, alloc.Reset())
	require.Len(t, h.device.Violations(), 1)

	h.queue.Flush()
	require.NoError(t, alloc.Reset())
	assert.Len(t, h.device.Violations(), 1)
}

func TestEmptyDescriptorIsReported(t *testing.T) {
	h := newHarness(t, true)
	alloc, _ := h.device.CreateCommandAllocator("alloc")
	l, _ := h.device.CreateCommandList(alloc, "list")
	l.SetPipelineState(h.pso)
	l.SetDescriptorHeap(h.heap)
	// slot 3 was never written
	l.SetGraphicsRootDescriptorTable(0, h.heap.GPUStart().Offset(3, descriptorIncrement))
	l.DrawInstanced(3, 1)
	require.NoError(t, l.Close())

	require.NoError(t, h.queue.ExecuteCommandLists([]metadata.CommandList{l}))
	h.queue.Flush()
	assert.NotEmpty(t, h.device.Violations())
}

func TestManualQueueFull(t *testing.T) {
	h := newHarness(t, true)
	fence := NewFence(0)
	for i := 1; i <= 8; i++ {
		require.NoError(t, h.queue.Signal(fence, uint64(i)))
	}
	assert.Error(t, h.queue.Signal(fence, 9))
	h.queue.Flush()
	assert.Equal(t, uint64(8), fence.CompletedValue())
}

func TestTextureUploadAndBarriers(t *testing.T) {
	h := newHarness(t, true)
	tex, err := h.device.CreateTexture(metadata.TextureDesc{Width: 2, Height: 1, Format: metadata.FormatRGBA8}, "tex")
	require.NoError(t, err)
	alloc, _ := h.device.CreateCommandAllocator("alloc")
	l, _ := h.device.CreateCommandList(alloc, "upload")

	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	l.ResourceBarrier(tex, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateCopyDest)
	l.UpdateTexture(tex, pixels, 8)
	l.ResourceBarrier(tex, metadata.ResourceStateCopyDest, metadata.ResourceStatePixelShaderResource)
	require.NoError(t, l.Close())
	// recorded pixels are a snapshot
	pixels[0] = 99

	require.NoError(t, h.queue.ExecuteCommandLists([]metadata.CommandList{l}))
	h.queue.Flush()

	st := tex.(*Texture)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, st.Pixels())
	assert.Equal(t, metadata.ResourceStatePixelShaderResource, st.State())
	assert.Empty(t, h.device.Violations())
}

func TestPresenterRotatesBackBuffers(t *testing.T) {
	b, err := New(Config{Manual: true, BufferCount: 3, Width: 4, Height: 4})
	require.NoError(t, err)
	p := b.Presenter()
	assert.Equal(t, 0, p.CurrentBackBufferIndex())
	require.NoError(t, p.Present(1, 0))
	assert.Equal(t, 1, p.CurrentBackBufferIndex())
	require.NoError(t, p.Present(1, metadata.PresentAllowTearing))
	require.NoError(t, p.Present(0, 0))
	assert.Equal(t, 0, p.CurrentBackBufferIndex())
	require.NoError(t, b.Shutdown())
	assert.Equal(t, int64(3), b.SoftwareDevice().Stats().Presents.Load())
	assert.Empty(t, b.SoftwareDevice().Violations())
}
