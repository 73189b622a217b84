package testbed

import (
	"context"
	"testing"

	"github.com/spaghettifunk/cadence/engine"
	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestbedScene(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	cfg.Renderer.Width, cfg.Renderer.Height = 160, 120
	cfg.Renderer.RenderThreadCount = 3
	cfg.Renderer.MaxFrames = 40
	cfg.Renderer.JobsPerCmdList = 16
	cfg.Renderer.MaxJobsPerThread = 1024

	game := NewTestGame(&engine.ApplicationConfig{Name: "testbed"})
	e, err := engine.New(game.Game, cfg)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run(context.Background()))

	state := game.State.(*gameState)
	assert.Equal(t, uint64(40), state.frame)
	assert.Equal(t, uint64(40), e.Renderer().FrameCount())
	info, ok := e.Renderer().TextureInfo(state.dynamic)
	require.True(t, ok)
	assert.Equal(t, uint32(128), info.Width)

	require.NoError(t, e.Shutdown())
}

func TestCubeGeometry(t *testing.T) {
	c := cube(1)
	assert.Len(t, c.Vertices, 8)
	assert.Len(t, c.Indices, 36)
	for _, i := range c.Indices {
		assert.Less(t, i, uint32(len(c.Vertices)))
	}
	assert.Len(t, axes(1).Vertices, 6)
}
