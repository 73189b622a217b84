package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type SlotState int

const (
	SlotRecording SlotState = iota
	SlotSubmitted
	SlotRetired
)

func (s SlotState) String() string {
	switch s {
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotRetired:
		return "retired"
	}
	return "unknown"
}

type pipelineSlot struct {
	state      SlotState
	fenceValue uint64
}

// FramePipeliner keeps up to N frames in flight. Each pending slot records
// the fence value signalled after its work; a slot is only handed back for
// reuse once the device reached that value.
type FramePipeliner struct {
	queue   metadata.CommandQueue
	fence   metadata.Fence
	value   uint64
	current int
	slots   []pipelineSlot
}

func NewFramePipeliner(queue metadata.CommandQueue, fence metadata.Fence, pendingCount int) *FramePipeliner {
	if pendingCount < 1 {
		core.Fatal(core.ErrMisuse, "pending frame count must be at least 1, got %d", pendingCount)
	}
	p := &FramePipeliner{
		queue: queue,
		fence: fence,
		value: fence.CompletedValue(),
		slots: make([]pipelineSlot, pendingCount),
	}
	for i := range p.slots {
		p.slots[i].state = SlotRetired
	}
	p.slots[0].state = SlotRecording
	return p
}

func (p *FramePipeliner) signal() (uint64, error) {
	p.value++
	if err := p.queue.Signal(p.fence, p.value); err != nil {
		return 0, fmt.Errorf("failed to signal fence value %d: %w", p.value, err)
	}
	p.slots[p.current].fenceValue = p.value
	return p.value, nil
}

// Fence signals the next value after all submitted work and assigns it to
// the current slot.
func (p *FramePipeliner) Fence() (uint64, error) {
	v, err := p.signal()
	if err != nil {
		return 0, err
	}
	p.slots[p.current].state = SlotSubmitted
	return v, nil
}

// WaitForGpu blocks until the device completed expected.
func (p *FramePipeliner) WaitForGpu(ctx context.Context, expected uint64) error {
	if p.fence.CompletedValue() >= expected {
		return nil
	}
	start := time.Now()
	err := p.fence.Wait(ctx, expected)
	core.MetricsObserveFenceWait(time.Since(start))
	return err
}

// Advance moves to the next slot. It waits for the fence value recorded on
// that slot, then calls reset with its index before it becomes current.
func (p *FramePipeliner) Advance(ctx context.Context, reset func(slot int)) error {
	next := (p.current + 1) % len(p.slots)
	if err := p.WaitForGpu(ctx, p.slots[next].fenceValue); err != nil {
		return fmt.Errorf("waiting for frame slot %d: %w", next, err)
	}
	p.slots[next].state = SlotRetired
	if reset != nil {
		reset(next)
	}
	p.current = next
	p.slots[next].state = SlotRecording
	return nil
}

// Flush waits until every submitted batch completed.
func (p *FramePipeliner) Flush(ctx context.Context) error {
	v, err := p.signal()
	if err != nil {
		return err
	}
	return p.WaitForGpu(ctx, v)
}

func (p *FramePipeliner) SlotState(i int) SlotState {
	return p.slots[i].state
}

func (p *FramePipeliner) SlotFenceValue(i int) uint64 {
	return p.slots[i].fenceValue
}

func (p *FramePipeliner) CurrentIndex() int {
	return p.current
}

func (p *FramePipeliner) LastFenceValue() uint64 {
	return p.value
}

func (p *FramePipeliner) PendingCount() int {
	return len(p.slots)
}
