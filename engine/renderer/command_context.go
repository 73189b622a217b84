package renderer

import (
	"github.com/spaghettifunk/cadence/engine/containers"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// CommandContextHandle pairs a command list with the allocator it records on.
type CommandContextHandle struct {
	Allocator metadata.CommandAllocator
	List      metadata.CommandList
}

// CommandContext recycles command lists for one worker and one pending frame.
// At most one list is current at a time. Free may only be called once the
// device finished every list handed out since the previous Free.
type CommandContext struct {
	device  metadata.Device
	pool    *containers.Pool[CommandContextHandle]
	current *CommandContextHandle
}

func NewCommandContext(device metadata.Device, maxNumCmdList int) *CommandContext {
	if maxNumCmdList < 2 {
		core.Fatal(core.ErrMisuse, "command context needs room for at least 2 lists, got %d", maxNumCmdList)
	}
	c := &CommandContext{device: device}
	c.pool = containers.NewPool(maxNumCmdList, c.createHandle).Named("command-context")
	return c
}

func (c *CommandContext) createHandle(index int) CommandContextHandle {
	alloc, err := c.device.CreateCommandAllocator("cmd-alloc")
	core.Must(err, "CreateCommandAllocator")
	list, err := c.device.CreateCommandList(alloc, "cmd-list")
	core.Must(err, "CreateCommandList")
	return CommandContextHandle{Allocator: alloc, List: list}
}

// AllocCmdCtx hands out a handle whose list is open for recording.
func (c *CommandContext) AllocCmdCtx() *CommandContextHandle {
	_, h := c.pool.Alloc()
	return h
}

// GetCurrentCommandList returns the open list, allocating one when none is current.
func (c *CommandContext) GetCurrentCommandList() metadata.CommandList {
	if c.current == nil {
		c.current = c.AllocCmdCtx()
	}
	return c.current.List
}

// Close closes the current list and returns it. The next
// GetCurrentCommandList starts a new one.
func (c *CommandContext) Close() metadata.CommandList {
	if c.current == nil {
		core.Fatal(core.ErrMisuse, "command context closed without a current list")
	}
	list := c.current.List
	core.Must(list.Close(), "CommandList.Close")
	c.current = nil
	return list
}

func (c *CommandContext) CloseAndExecute(queue metadata.CommandQueue) {
	list := c.Close()
	core.Must(queue.ExecuteCommandLists([]metadata.CommandList{list}), "ExecuteCommandLists")
}

// Free resets every list handed out since the last Free.
func (c *CommandContext) Free() {
	if c.current != nil {
		core.Fatal(core.ErrMisuse, "command context freed while a list is still recording")
	}
	core.MetricsPoolUsage(c.pool.Name(), c.pool.Used())
	c.pool.Reset(func(_ int, h *CommandContextHandle) {
		core.Must(h.Allocator.Reset(), "CommandAllocator.Reset")
		core.Must(h.List.Reset(h.Allocator), "CommandList.Reset")
	})
}

// CmdListCount is the number of lists ever created by this context.
func (c *CommandContext) CmdListCount() int {
	return c.pool.Constructed()
}

func (c *CommandContext) InUse() int {
	return c.pool.Used()
}

func (c *CommandContext) Shutdown() {
	c.current = nil
	c.pool.Each(func(_ int, h *CommandContextHandle) {
		h.List.Release()
		h.Allocator.Release()
	})
}
