package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(frames uint64) config.Config {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	cfg.Renderer.Width, cfg.Renderer.Height = 32, 32
	cfg.Renderer.RenderThreadCount = 2
	cfg.Renderer.MaxCmdListsPerThread = 8
	cfg.Renderer.MaxDescriptorsPerThread = 64
	cfg.Renderer.MaxDrawsPerThread = 32
	cfg.Renderer.MaxJobsPerThread = 32
	cfg.Renderer.MaxPersistentDescriptors = 8
	cfg.Renderer.MaxFrames = frames
	return cfg
}

type countingGame struct {
	mesh                    core.Handle
	inits, updates, renders int
	shutdowns               int
	renderErr               error
}

func (c *countingGame) game() *Game {
	return &Game{
		ApplicationConfig: &ApplicationConfig{Name: "engine-test"},
		FnInitialize: func(r *renderer.Renderer) error {
			c.inits++
			h, err := r.CreateMeshObject(metadata.MeshData{
				Vertices: []metadata.Vertex{
					{Position: math.NewVec3(0, 1, 0), Color: math.NewVec4(1, 1, 1, 1)},
					{Position: math.NewVec3(1, -1, 0), Color: math.NewVec4(1, 1, 1, 1)},
					{Position: math.NewVec3(-1, -1, 0), Color: math.NewVec4(1, 1, 1, 1)},
				},
				Indices: []uint32{0, 1, 2},
			})
			c.mesh = h
			return err
		},
		FnUpdate: func(float64) error {
			c.updates++
			return nil
		},
		FnRender: func(r *renderer.Renderer, _ float64) error {
			c.renders++
			r.RenderMeshObject(c.mesh, math.NewMat4Identity())
			return c.renderErr
		},
		FnShutdown: func(*renderer.Renderer) error {
			c.shutdowns++
			return nil
		},
	}
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	g := &countingGame{}
	e, err := New(g.game(), testConfig(4))
	require.NoError(t, err)
	assert.Equal(t, EngineStageBootComplete, e.Stage())

	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, uint64(4), e.Renderer().FrameCount())
	assert.Equal(t, 1, g.inits)
	assert.Equal(t, 4, g.updates)
	assert.Equal(t, 4, g.renders)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, 1, g.shutdowns)
	assert.Nil(t, e.Renderer())
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	g := &countingGame{}
	e, err := New(g.game(), testConfig(0))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, g.renders)
}

func TestEngineRenderErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	g := &countingGame{renderErr: boom}
	e, err := New(g.game(), testConfig(10))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	assert.ErrorIs(t, e.Run(context.Background()), boom)
	assert.Equal(t, 1, g.renders)
}

func TestEngineReturnsFatalConditions(t *testing.T) {
	g := &countingGame{}
	game := g.game()
	game.FnRender = func(r *renderer.Renderer, _ float64) error {
		r.BeginRender()
		return nil
	}
	e, err := New(game, testConfig(1))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	err = e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMisuse)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Renderer.FrameCount = 0
	_, err := New((&countingGame{}).game(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEngineLifecycleOrder(t *testing.T) {
	e, err := New((&countingGame{}).game(), testConfig(1))
	require.NoError(t, err)
	assert.Error(t, e.Run(context.Background()), "run before initialize")
	require.NoError(t, e.Initialize())
	assert.Error(t, e.Initialize(), "initialize twice")
	require.NoError(t, e.Shutdown())
}

func TestEngineApplyConfigChangesLogLevelOnly(t *testing.T) {
	e, err := New((&countingGame{}).game(), testConfig(1))
	require.NoError(t, err)

	next := testConfig(1)
	next.Log.Level = "debug"
	next.Renderer.Width = 640
	e.ApplyConfig(next)

	assert.Equal(t, "debug", e.cfg.Log.Level)
	assert.Equal(t, uint32(32), e.cfg.Renderer.Width)
	core.SetLogLevel("warn")
}
