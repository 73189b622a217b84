package engine

import (
	"github.com/spaghettifunk/cadence/engine/renderer"
)

// Game is driven by the engine once per frame. Render runs between
// BeginRender and EndRender and should only enqueue draws.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnShutdown        Shutdown
}

type Initialize func(r *renderer.Renderer) error
type Update func(deltaTime float64) error
type Render func(r *renderer.Renderer, deltaTime float64) error
type Shutdown func(r *renderer.Renderer) error
