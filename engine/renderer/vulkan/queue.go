package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// Queue submits to the graphics queue. Submissions from several goroutines
// are serialized through the lock pool.
type Queue struct {
	device *Device
}

func newQueue(d *Device) *Queue {
	return &Queue{device: d}
}

func (q *Queue) submit(buffers []vk.CommandBuffer, fence vk.Fence) error {
	ctx := q.device.ctx
	infos := []vk.SubmitInfo{}
	if len(buffers) > 0 {
		infos = append(infos, vk.SubmitInfo{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: uint32(len(buffers)),
			PCommandBuffers:    buffers,
		})
	}
	return ctx.Locks.SafeQueueCall(ctx.Device.GraphicsQueueIndex, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(ctx.Device.GraphicsQueue, uint32(len(infos)), infos, fence))
	})
}

func (q *Queue) ExecuteCommandLists(lists []metadata.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	native := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("command list %T does not belong to the vulkan device", l)
		}
		if cl.cb.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			return fmt.Errorf("command list `%s` executed while open", cl.label)
		}
		buffers = append(buffers, cl.cb.Handle)
		native = append(native, cl)
	}
	if err := q.submit(buffers, vk.NullFence); err != nil {
		return err
	}
	for _, cl := range native {
		cl.cb.UpdateSubmitted()
	}
	q.device.stats.Batches.Inc()
	q.device.stats.ListsExecuted.Add(int64(len(lists)))
	return nil
}

func (q *Queue) Signal(fence metadata.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("fence %T does not belong to the vulkan device", fence)
	}
	return f.signal(q, value)
}

// WaitIdle blocks until the queue drained.
func (q *Queue) WaitIdle() error {
	ctx := q.device.ctx
	return ctx.Locks.SafeQueueCall(ctx.Device.GraphicsQueueIndex, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(ctx.Device.GraphicsQueue))
	})
}
