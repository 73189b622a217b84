package renderer

import (
	"testing"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandContextCapacity(t *testing.T) {
	d, _ := newTestDevice(t, true)
	c := NewCommandContext(d, 2)

	a := c.AllocCmdCtx()
	b := c.AllocCmdCtx()
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.InUse())
	requireFatal(t, core.ErrCapacityExhausted, func() { c.AllocCmdCtx() })
}

func TestCommandContextFreeReusesLists(t *testing.T) {
	d, _ := newTestDevice(t, true)
	c := NewCommandContext(d, 4)

	first := c.GetCurrentCommandList()
	assert.Same(t, first, c.GetCurrentCommandList())
	closed := c.Close()
	assert.Same(t, first, closed)

	second := c.GetCurrentCommandList()
	assert.NotSame(t, first, second)
	c.Close()
	assert.Equal(t, 2, c.CmdListCount())

	c.Free()
	assert.Equal(t, 0, c.InUse())
	assert.Same(t, first, c.GetCurrentCommandList())
	c.Close()
	assert.Equal(t, 2, c.CmdListCount())
	assert.Empty(t, d.Violations())
}

func TestCommandContextCloseAndExecute(t *testing.T) {
	d, q := newTestDevice(t, true)
	c := NewCommandContext(d, 2)

	list := c.GetCurrentCommandList()
	list.ClearDepthStencilView(metadata.CPUDescriptorHandle{}, 1)
	c.CloseAndExecute(q)
	require.Equal(t, 1, q.Pending())
	q.Flush()

	assert.Equal(t, int64(1), d.Stats().ListsExecuted.Load())
	c.Free()
	assert.Empty(t, d.Violations())
}

func TestCommandContextMisuse(t *testing.T) {
	d, _ := newTestDevice(t, true)

	requireFatal(t, core.ErrMisuse, func() { NewCommandContext(d, 1) })

	c := NewCommandContext(d, 2)
	requireFatal(t, core.ErrMisuse, func() { c.Close() })

	c.GetCurrentCommandList()
	requireFatal(t, core.ErrMisuse, func() { c.Free() })
}
