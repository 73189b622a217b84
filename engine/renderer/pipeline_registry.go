package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type pipelineEntry struct {
	state metadata.PipelineState
	refs  int
}

// PipelineRegistry shares one pipeline state per object kind. The state is
// created on the first Acquire and released with the last Release.
type PipelineRegistry struct {
	device  metadata.Device
	mu      sync.RWMutex
	entries [metadata.PipelineKindCount]pipelineEntry
}

func NewPipelineRegistry(device metadata.Device) *PipelineRegistry {
	return &PipelineRegistry{device: device}
}

func (r *PipelineRegistry) Acquire(kind metadata.PipelineKind) metadata.PipelineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &r.entries[kind]
	if e.refs == 0 {
		topology := metadata.PrimitiveTopologyTriangleList
		if kind == metadata.PipelineKindLine {
			topology = metadata.PrimitiveTopologyLineList
		}
		state, err := r.device.CreatePipelineState(metadata.PipelineStateDesc{
			Kind:     kind,
			Topology: topology,
			Label:    fmt.Sprintf("pso-%s", kind),
		})
		core.Must(err, "CreatePipelineState")
		e.state = state
		core.LogDebug("created %s pipeline state", kind)
	}
	e.refs++
	return e.state
}

// Get returns the live state of kind without taking a reference.
func (r *PipelineRegistry) Get(kind metadata.PipelineKind) metadata.PipelineState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.entries[kind].refs == 0 {
		core.Fatal(core.ErrMisuse, "%s pipeline state used without a reference", kind)
	}
	return r.entries[kind].state
}

func (r *PipelineRegistry) Release(kind metadata.PipelineKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &r.entries[kind]
	if e.refs == 0 {
		core.Fatal(core.ErrMisuse, "%s pipeline state released more often than acquired", kind)
	}
	e.refs--
	if e.refs == 0 {
		e.state.Release()
		e.state = nil
		core.LogDebug("released %s pipeline state", kind)
	}
}

func (r *PipelineRegistry) Refs(kind metadata.PipelineKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[kind].refs
}
