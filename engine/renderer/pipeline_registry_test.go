package renderer

import (
	"testing"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func TestPipelineRegistrySharesStates(t *testing.T) {
	d, _ := newTestDevice(t, true)
	r := NewPipelineRegistry(d)

	a := r.Acquire(metadata.PipelineKindMesh)
	b := r.Acquire(metadata.PipelineKindMesh)
	assert.Same(t, a, b)
	assert.Equal(t, 2, r.Refs(metadata.PipelineKindMesh))
	assert.Equal(t, metadata.PipelineKindMesh, r.Get(metadata.PipelineKindMesh).Kind())

	line := r.Acquire(metadata.PipelineKindLine)
	assert.NotSame(t, a, line)

	r.Release(metadata.PipelineKindMesh)
	assert.Same(t, a, r.Get(metadata.PipelineKindMesh))
	r.Release(metadata.PipelineKindMesh)
	assert.Equal(t, 0, r.Refs(metadata.PipelineKindMesh))
	assert.Equal(t, 1, r.Refs(metadata.PipelineKindLine))
}

func TestPipelineRegistryMisuse(t *testing.T) {
	d, _ := newTestDevice(t, true)
	r := NewPipelineRegistry(d)

	requireFatal(t, core.ErrMisuse, func() { r.Get(metadata.PipelineKindSprite) })
	requireFatal(t, core.ErrMisuse, func() { r.Release(metadata.PipelineKindSprite) })
}
