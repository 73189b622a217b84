package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelinerInitialState(t *testing.T) {
	_, q := newTestDevice(t, true)
	p := NewFramePipeliner(q, software.NewFence(5), 3)

	assert.Equal(t, 3, p.PendingCount())
	assert.Equal(t, 0, p.CurrentIndex())
	assert.Equal(t, uint64(5), p.LastFenceValue())
	assert.Equal(t, SlotRecording, p.SlotState(0))
	assert.Equal(t, SlotRetired, p.SlotState(1))
	assert.Equal(t, SlotRetired, p.SlotState(2))

	requireFatal(t, core.ErrMisuse, func() { NewFramePipeliner(q, software.NewFence(0), 0) })
}

func TestPipelinerWaitsOnlyForReusedSlot(t *testing.T) {
	_, q := newTestDevice(t, true)
	fence := software.NewFence(0)
	p := NewFramePipeliner(q, fence, 2)
	ctx := context.Background()

	v, err := p.Fence()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, SlotSubmitted, p.SlotState(0))

	var resets []int
	require.NoError(t, p.Advance(ctx, func(slot int) { resets = append(resets, slot) }))
	assert.Equal(t, []int{1}, resets)
	assert.Equal(t, 1, p.CurrentIndex())
	assert.Equal(t, SlotRecording, p.SlotState(1))

	v, err = p.Fence()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, uint64(1), p.SlotFenceValue(0))
	assert.Equal(t, uint64(2), p.SlotFenceValue(1))

	var completedAtReset uint64
	done := make(chan error, 1)
	go func() {
		done <- p.Advance(ctx, func(slot int) {
			completedAtReset = fence.CompletedValue()
		})
	}()

	select {
	case <-done:
		t.Fatal("slot 0 was reused before its fence completed")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, q.Step())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("advance did not return after fence 1 completed")
	}

	assert.Equal(t, uint64(1), completedAtReset)
	assert.Equal(t, uint64(1), fence.CompletedValue())
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, 0, p.CurrentIndex())
	assert.Equal(t, SlotRecording, p.SlotState(0))
	assert.Equal(t, SlotSubmitted, p.SlotState(1))
}

func TestPipelinerAdvanceCancelled(t *testing.T) {
	_, q := newTestDevice(t, true)
	p := NewFramePipeliner(q, software.NewFence(0), 2)
	ctx := context.Background()

	_, err := p.Fence()
	require.NoError(t, err)
	require.NoError(t, p.Advance(ctx, nil))
	_, err = p.Fence()
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = p.Advance(cancelled, func(int) { t.Fatal("reset must not run") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.CurrentIndex())
}

func TestPipelinerFlush(t *testing.T) {
	_, q := newTestDevice(t, false)
	fence := software.NewFence(0)
	p := NewFramePipeliner(q, fence, 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := p.Fence()
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, p.LastFenceValue(), fence.CompletedValue())
	assert.Equal(t, uint64(2), fence.CompletedValue())
	assert.Equal(t, SlotSubmitted, p.SlotState(0))
	assert.Equal(t, 0, p.CurrentIndex())
}

func TestPipelinerSingleSlot(t *testing.T) {
	_, q := newTestDevice(t, false)
	fence := software.NewFence(0)
	p := NewFramePipeliner(q, fence, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := p.Fence()
		require.NoError(t, err)
		require.NoError(t, p.Advance(ctx, func(slot int) {
			assert.Equal(t, 0, slot)
			assert.GreaterOrEqual(t, fence.CompletedValue(), p.SlotFenceValue(slot))
		}))
	}
	assert.Equal(t, uint64(3), fence.CompletedValue())
}
