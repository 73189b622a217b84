package vulkan_test

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/spaghettifunk/cadence/engine/renderer/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBackend skips on machines without a Vulkan loader or device.
func newBackend(t *testing.T) *vulkan.Backend {
	t.Helper()
	b, err := vulkan.New(vulkan.Config{AppName: "cadence-test", Width: 64, Height: 48, BufferCount: 3})
	if err != nil {
		t.Skipf("vulkan unavailable: %s", err)
	}
	return b
}

func TestFenceSignalAndWait(t *testing.T) {
	b := newBackend(t)
	defer b.Shutdown()

	fence, err := b.Device().CreateFence(0)
	require.NoError(t, err)
	defer fence.Release()

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, b.Queue().Signal(fence, v))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fence.Wait(ctx, 3))
	assert.Equal(t, uint64(3), fence.CompletedValue())
}

func TestRendererOnVulkan(t *testing.T) {
	b := newBackend(t)
	defer b.Shutdown()

	cfg := config.Default().Renderer
	cfg.Backend = config.BackendVulkan
	cfg.Width, cfg.Height = 64, 48
	cfg.RenderThreadCount = 2
	cfg.MaxCmdListsPerThread = 8
	cfg.MaxDescriptorsPerThread = 128
	cfg.MaxDrawsPerThread = 32
	cfg.MaxJobsPerThread = 32
	cfg.MaxPersistentDescriptors = 16

	r, err := renderer.New(cfg, b.Device(), b.Queue(), b.Presenter())
	require.NoError(t, err)

	c := math.NewVec4(0, 1, 0, 1)
	mesh, err := r.CreateMeshObject(metadata.MeshData{
		Vertices: []metadata.Vertex{
			{Position: math.NewVec3(0, 1, 0), Color: c},
			{Position: math.NewVec3(1, -1, 0), Color: c},
			{Position: math.NewVec3(-1, -1, 0), Color: c},
		},
		Indices: []uint32{0, 1, 2},
	})
	require.NoError(t, err)
	tex, err := r.CreateTiledTexture(16, 16, 0, 0, 255)
	require.NoError(t, err)
	sprite, err := r.CreateSpriteObjectWithTexture(tex, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	const frames = 4
	for f := 0; f < frames; f++ {
		r.BeginRender()
		r.RenderMeshObject(mesh, math.NewMat4Identity())
		r.RenderSpriteObject(sprite, 4, 4, 1, 1, 0.5)
		r.EndRender()
		require.NoError(t, r.Present(ctx))
	}
	require.NoError(t, r.Shutdown(ctx))

	stats := b.VulkanDevice().Stats()
	assert.Equal(t, int64(frames), stats.Presents.Load())
	assert.Equal(t, int64(frames*2), stats.IndexedDraws.Load())
	assert.Equal(t, int64(frames*2), stats.SkippedDraws.Load(), "no native pipelines attached")
	assert.Equal(t, int64(1), stats.TextureUploads.Load())
	assert.Positive(t, stats.Batches.Load())
}
