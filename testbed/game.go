package testbed

import (
	"image"
	"image/color"
	stdmath "math"

	"github.com/spaghettifunk/cadence/engine"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// cubeGrid is the side of the grid of cubes drawn every frame.
const cubeGrid = 8

type TestGame struct {
	*engine.Game
}

type gameState struct {
	cube     core.Handle
	axes     core.Handle
	checker  core.Handle
	sprite   core.Handle
	plain    core.Handle
	dynamic  core.Handle
	banner   core.Handle
	pattern  *image.RGBA
	elapsed  float64
	frame    uint64
	rotation float32
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize(r *renderer.Renderer) error {
	core.LogDebug("testbed initialize")
	state := g.State.(*gameState)

	var err error
	if state.cube, err = r.CreateMeshObject(cube(0.4)); err != nil {
		return err
	}
	if state.axes, err = r.CreateLineObject(axes(2)); err != nil {
		return err
	}
	if state.checker, err = r.CreateTiledTexture(64, 64, 200, 40, 40); err != nil {
		return err
	}
	if state.sprite, err = r.CreateSpriteObjectWithTexture(state.checker, &metadata.Rect{Left: 0, Top: 0, Right: 32, Bottom: 32}); err != nil {
		return err
	}
	state.plain = r.CreateSpriteObject()

	if state.dynamic, err = r.CreateDynamicTexture(128, 32); err != nil {
		return err
	}
	if state.banner, err = r.CreateSpriteObjectWithTexture(state.dynamic, nil); err != nil {
		return err
	}
	state.pattern = image.NewRGBA(image.Rect(0, 0, 64, 16))

	r.SetCamera(math.NewVec3(0, 2, -8), math.NewVec3(0, -0.2, 1))
	r.SetClearColor([4]float32{0.05, 0.05, 0.12, 1})
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime
	state.frame++
	state.rotation += float32(0.5 * deltaTime)
	return nil
}

func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	state := g.State.(*gameState)

	// orbit the camera slowly around the grid
	angle := state.elapsed * 0.2
	r.SetCameraPos(math.NewVec3(float32(8*stdmath.Sin(angle)), 2, float32(-8*stdmath.Cos(angle))))

	rot := math.NewMat4EulerY(state.rotation)
	for x := 0; x < cubeGrid; x++ {
		for z := 0; z < cubeGrid; z++ {
			pos := math.NewVec3(float32(x)-cubeGrid/2, 0, float32(z)-cubeGrid/2)
			r.RenderMeshObject(state.cube, rot.Mul(math.NewMat4Translation(pos)))
		}
	}
	r.RenderLineObject(state.axes, math.NewMat4Identity())

	r.RenderSpriteObject(state.sprite, 16, 16, 1, 1, 0.5)
	r.RenderSpriteObject(state.plain, 64, 16, 8, 8, 0.4)

	if state.frame%30 == 0 {
		g.paintBanner(state)
		if err := r.UpdateTextureWithImage(state.dynamic, state.pattern); err != nil {
			return err
		}
	}
	r.RenderSpriteObject(state.banner, 16, 64, 1, 1, 0.3)
	return nil
}

// paintBanner draws moving stripes; the texture manager scales the image to
// the texture size.
func (g *TestGame) paintBanner(state *gameState) {
	b := state.pattern.Bounds()
	shift := int(state.frame / 30)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBA{R: 30, G: 30, B: 30, A: 255}
			if ((x+shift)/8)%2 == 0 {
				c = color.RGBA{R: 240, G: 200, B: 40, A: 255}
			}
			state.pattern.SetRGBA(x, y, c)
		}
	}
}

func (g *TestGame) Shutdown(r *renderer.Renderer) error {
	state := g.State.(*gameState)
	for _, h := range []core.Handle{state.cube, state.axes, state.sprite, state.plain, state.banner} {
		if err := r.DestroyObject(h); err != nil {
			core.LogWarn("testbed: %s", err)
		}
	}
	for _, h := range []core.Handle{state.checker, state.dynamic} {
		if err := r.DestroyTexture(h); err != nil {
			core.LogWarn("testbed: %s", err)
		}
	}
	return nil
}

func cube(half float32) metadata.MeshData {
	corners := []math.Vec3{
		math.NewVec3(-half, -half, -half), math.NewVec3(half, -half, -half),
		math.NewVec3(half, half, -half), math.NewVec3(-half, half, -half),
		math.NewVec3(-half, -half, half), math.NewVec3(half, -half, half),
		math.NewVec3(half, half, half), math.NewVec3(-half, half, half),
	}
	vertices := make([]metadata.Vertex, len(corners))
	for i, p := range corners {
		vertices[i] = metadata.Vertex{
			Position: p,
			Color:    math.NewVec4(0.5+p.X, 0.5+p.Y, 0.5+p.Z, 1),
		}
	}
	return metadata.MeshData{
		Vertices: vertices,
		Indices: []uint32{
			0, 2, 1, 0, 3, 2, // back
			4, 5, 6, 4, 6, 7, // front
			0, 4, 7, 0, 7, 3, // left
			1, 2, 6, 1, 6, 5, // right
			3, 7, 6, 3, 6, 2, // top
			0, 1, 5, 0, 5, 4, // bottom
		},
	}
}

func axes(length float32) metadata.LineData {
	red, green, blue := math.NewVec4(1, 0, 0, 1), math.NewVec4(0, 1, 0, 1), math.NewVec4(0, 0, 1, 1)
	origin := math.NewVec3(0, 0, 0)
	return metadata.LineData{Vertices: []metadata.LineVertex{
		{Position: origin, Color: red}, {Position: math.NewVec3(length, 0, 0), Color: red},
		{Position: origin, Color: green}, {Position: math.NewVec3(0, length, 0), Color: green},
		{Position: origin, Color: blue}, {Position: math.NewVec3(0, 0, length), Color: blue},
	}}
}
