package renderer

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/spaghettifunk/cadence/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRendererConfig(threads int, multiThreaded bool) config.RendererConfig {
	cfg := config.Default().Renderer
	cfg.Width, cfg.Height = 64, 48
	cfg.RenderThreadCount = threads
	cfg.MultiThreaded = multiThreaded
	cfg.MaxCmdListsPerThread = 34
	cfg.MaxDescriptorsPerThread = 256
	cfg.MaxDrawsPerThread = 64
	cfg.MaxJobsPerThread = 64
	cfg.JobsPerCmdList = 2
	cfg.MaxPersistentDescriptors = 32
	return cfg
}

func newTestRenderer(t *testing.T, cfg config.RendererConfig) (*Renderer, *software.Backend) {
	t.Helper()
	backend, err := software.New(software.Config{
		Latency:     50 * time.Microsecond,
		QueueDepth:  64,
		BufferCount: cfg.FrameCount,
		Width:       cfg.Width,
		Height:      cfg.Height,
	})
	require.NoError(t, err)
	r, err := New(cfg, backend.Device(), backend.Queue(), backend.Presenter())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, r.Shutdown(ctx))
		assert.NoError(t, backend.Shutdown())
	})
	return r, backend
}

func renderFrame(t *testing.T, r *Renderer, draw func()) {
	t.Helper()
	r.BeginRender()
	if draw != nil {
		draw()
	}
	r.EndRender()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Present(ctx))
}

func triangle() metadata.MeshData {
	c := math.NewVec4(1, 0, 0, 1)
	return metadata.MeshData{
		Vertices: []metadata.Vertex{
			{Position: math.NewVec3(0, 1, 0), Color: c},
			{Position: math.NewVec3(1, -1, 0), Color: c},
			{Position: math.NewVec3(-1, -1, 0), Color: c},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func axisLines() metadata.LineData {
	c := math.NewVec4(1, 1, 1, 1)
	return metadata.LineData{Vertices: []metadata.LineVertex{
		{Position: math.NewVec3(0, 0, 0), Color: c},
		{Position: math.NewVec3(1, 0, 0), Color: c},
		{Position: math.NewVec3(0, 0, 0), Color: c},
		{Position: math.NewVec3(0, 1, 0), Color: c},
	}}
}

func softwareTexture(t *testing.T, r *Renderer, h core.Handle) *software.Texture {
	t.Helper()
	tex, ok := r.textures.resolve(h).tex.(*software.Texture)
	require.True(t, ok)
	return tex
}

func TestRendererDrawsEveryObjectKind(t *testing.T) {
	for _, tc := range []struct {
		name          string
		threads       int
		multiThreaded bool
	}{
		{"single thread", 1, false},
		{"sequential workers", 3, false},
		{"parallel workers", 3, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, backend := newTestRenderer(t, testRendererConfig(tc.threads, tc.multiThreaded))
			dev := backend.SoftwareDevice()
			assert.Equal(t, tc.threads, r.ThreadCount())

			mesh, err := r.CreateMeshObject(triangle())
			require.NoError(t, err)
			tex, err := r.CreateTiledTexture(32, 32, 255, 0, 0)
			require.NoError(t, err)
			sprite, err := r.CreateSpriteObjectWithTexture(tex, nil)
			require.NoError(t, err)
			plain := r.CreateSpriteObject()
			line, err := r.CreateLineObject(axisLines())
			require.NoError(t, err)

			const frames = 5
			for f := 0; f < frames; f++ {
				renderFrame(t, r, func() {
					for i := 0; i < 3; i++ {
						r.RenderMeshObject(mesh, math.NewMat4Translation(math.NewVec3(float32(i), 0, 0)))
					}
					r.RenderSpriteObject(sprite, 10, 10, 1, 1, 0.5)
					r.RenderSpriteObject(plain, 0, 0, 4, 4, 0.1)
					r.RenderLineObject(line, math.NewMat4Identity())
				})
			}
			require.NoError(t, r.GpuCompleted(context.Background()))

			stats := dev.Stats()
			assert.Equal(t, int64(frames*5), stats.IndexedDraws.Load())
			assert.Equal(t, int64(frames), stats.Draws.Load())
			assert.Equal(t, int64(frames), stats.Presents.Load())
			assert.Equal(t, int64(2), stats.TextureUploads.Load(), "tiled and dummy textures upload once")
			assert.Equal(t, uint64(frames), r.FrameCount())
			assert.Empty(t, dev.Violations())

			pixels := softwareTexture(t, r, tex).Pixels()
			assert.Equal(t, []byte{255, 0, 0, 255}, pixels[:4])
		})
	}
}

func TestRendererSteadyStateReusesCommandLists(t *testing.T) {
	r, backend := newTestRenderer(t, testRendererConfig(2, true))
	mesh, err := r.CreateMeshObject(triangle())
	require.NoError(t, err)

	draw := func() {
		for i := 0; i < 4; i++ {
			r.RenderMeshObject(mesh, math.NewMat4Identity())
		}
	}
	for f := 0; f < r.Pipeliner().PendingCount(); f++ {
		renderFrame(t, r, draw)
	}
	steady := r.CmdListCount()
	require.Positive(t, steady)

	for f := 0; f < 20; f++ {
		renderFrame(t, r, draw)
	}
	assert.Equal(t, steady, r.CmdListCount())
	assert.Empty(t, backend.SoftwareDevice().Violations())
}

func TestRendererPresentAdvancesFrameSlots(t *testing.T) {
	r, _ := newTestRenderer(t, testRendererConfig(1, false))
	p := r.Pipeliner()
	require.Equal(t, 2, p.PendingCount())

	renderFrame(t, r, nil)
	assert.Equal(t, 1, p.CurrentIndex())
	assert.Equal(t, uint64(1), p.SlotFenceValue(0))

	renderFrame(t, r, nil)
	assert.Equal(t, 0, p.CurrentIndex())
	assert.Equal(t, uint64(2), p.SlotFenceValue(1))
	assert.GreaterOrEqual(t, r.fence.CompletedValue(), uint64(1))
}

func TestRendererDestroyObjectIsDeferred(t *testing.T) {
	r, backend := newTestRenderer(t, testRendererConfig(1, false))
	mesh, err := r.CreateMeshObject(triangle())
	require.NoError(t, err)
	renderFrame(t, r, func() { r.RenderMeshObject(mesh, math.NewMat4Identity()) })

	require.NoError(t, r.DestroyObject(mesh))
	_, ok := r.Resolve(mesh)
	assert.False(t, ok)
	assert.Error(t, r.DestroyObject(mesh))
	assert.Equal(t, 1, r.pipelines.Refs(metadata.PipelineKindMesh))

	renderFrame(t, r, nil)
	assert.Equal(t, 1, r.pipelines.Refs(metadata.PipelineKindMesh), "released only once its frame retired")
	renderFrame(t, r, nil)
	assert.Equal(t, 0, r.pipelines.Refs(metadata.PipelineKindMesh))
	assert.Empty(t, backend.SoftwareDevice().Violations())
}

func TestRendererDynamicTextureUpdates(t *testing.T) {
	r, backend := newTestRenderer(t, testRendererConfig(1, false))
	dev := backend.SoftwareDevice()
	tex, err := r.CreateDynamicTexture(4, 4)
	require.NoError(t, err)
	info, ok := r.TextureInfo(tex)
	require.True(t, ok)
	assert.Equal(t, metadata.TextureKindDynamic, info.Kind)
	sprite, err := r.CreateSpriteObjectWithTexture(tex, &metadata.Rect{Right: 2, Bottom: 2})
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	require.NoError(t, r.UpdateTextureWithImage(tex, img))

	draw := func() { r.RenderSpriteObject(sprite, 0, 0, 1, 1, 0) }
	renderFrame(t, r, draw)
	renderFrame(t, r, draw)
	require.NoError(t, r.GpuCompleted(context.Background()))
	assert.Equal(t, int64(1), dev.Stats().TextureUploads.Load())
	assert.Equal(t, []byte{0, 0, 255, 255}, softwareTexture(t, r, tex).Pixels()[:4])

	require.NoError(t, r.UpdateTextureWithImage(tex, image.NewUniform(color.White)))
	renderFrame(t, r, draw)
	require.NoError(t, r.GpuCompleted(context.Background()))
	assert.Equal(t, int64(2), dev.Stats().TextureUploads.Load())
	pix := softwareTexture(t, r, tex).Pixels()
	assert.Equal(t, []byte{255, 255, 255, 255}, pix[:4])
	assert.Equal(t, []byte{255, 255, 255, 255}, pix[len(pix)-4:])
	assert.Empty(t, dev.Violations())
}

func TestRendererRejectsUnusableImages(t *testing.T) {
	r, _ := newTestRenderer(t, testRendererConfig(1, false))
	tex, err := r.CreateDynamicTexture(4, 4)
	require.NoError(t, err)

	tests := []struct {
		name string
		img  image.Image
	}{
		{"nil", nil},
		{"empty", image.NewRGBA(image.Rectangle{})},
		{"too wide", &image.Gray{Rect: image.Rect(0, 0, maxSourceExtent+1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.UpdateTextureWithImage(tex, tt.img), ErrInvalidImage)
		})
	}
}

func TestRendererTextureErrors(t *testing.T) {
	r, _ := newTestRenderer(t, testRendererConfig(1, false))

	tex, err := r.CreateTiledTexture(16, 16, 0, 255, 0)
	require.NoError(t, err)
	require.NoError(t, r.DestroyTexture(tex))

	_, err = r.CreateSpriteObjectWithTexture(tex, nil)
	assert.ErrorIs(t, err, ErrUnknownTexture)
	assert.ErrorIs(t, r.UpdateTextureWithImage(tex, image.NewRGBA(image.Rect(0, 0, 1, 1))), ErrUnknownTexture)
	assert.ErrorIs(t, r.DestroyTexture(tex), ErrUnknownTexture)
	assert.Error(t, r.DestroyTexture(r.textures.Dummy()))

	_, err = r.CreateMeshObject(metadata.MeshData{})
	assert.ErrorIs(t, err, ErrEmptyGeometry)
	bad := triangle()
	bad.Indices = []uint32{0, 1, 9}
	_, err = r.CreateMeshObject(bad)
	assert.ErrorIs(t, err, ErrBadIndex)
}

func TestRendererFrameMisuse(t *testing.T) {
	r, _ := newTestRenderer(t, testRendererConfig(1, false))
	mesh, err := r.CreateMeshObject(triangle())
	require.NoError(t, err)

	requireFatal(t, core.ErrMisuse, func() { r.RenderMeshObject(mesh, math.NewMat4Identity()) })
	requireFatal(t, core.ErrMisuse, func() { r.EndRender() })

	r.BeginRender()
	requireFatal(t, core.ErrMisuse, func() { r.BeginRender() })
	requireFatal(t, core.ErrMisuse, func() { _ = r.Present(context.Background()) })
	r.EndRender()
	require.NoError(t, r.Present(context.Background()))
}

func TestRendererRejectsInvalidConfig(t *testing.T) {
	cfg := testRendererConfig(1, false)
	cfg.FramePendingCount = 0
	d, q := newTestDevice(t, false)
	p, err := software.NewPresenter(d, q, 2, 16, 16)
	require.NoError(t, err)

	_, err = New(cfg, d, q, p)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
