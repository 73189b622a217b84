package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer"
	"github.com/spaghettifunk/cadence/engine/renderer/software"
	"github.com/spaghettifunk/cadence/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// shutdownTimeout bounds the wait for the device during Shutdown.
const shutdownTimeout = 10 * time.Second

// fpsLogInterval is the number of frames between two FPS log lines.
const fpsLogInterval = 600

type Engine struct {
	mu           sync.Mutex
	currentStage Stage
	cfg          config.Config

	gameInstance *Game
	backend      renderer.Backend
	renderer     *renderer.Renderer
	clock        *core.Clock
	lastTime     float64
}

// New boots the engine: the configuration is validated and the log level
// applied. No device object exists until Initialize.
func New(g *Game, cfg config.Config) (*Engine, error) {
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		clock:        core.NewClock(),
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.SetLogLevel(cfg.Log.Level)
	e.cfg = cfg
	e.setStage(EngineStageBootComplete)
	return e, nil
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	e.currentStage = s
	e.mu.Unlock()
}

func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStage
}

// Renderer is nil before Initialize.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func newBackend(app *ApplicationConfig, cfg config.Config) (renderer.Backend, error) {
	r := cfg.Renderer
	switch r.Backend {
	case config.BackendVulkan:
		return vulkan.New(vulkan.Config{
			AppName:     app.Name,
			Width:       r.Width,
			Height:      r.Height,
			BufferCount: r.FrameCount,
			Debug:       app.Debug,
		})
	case config.BackendSoftware:
		return software.New(software.Config{
			Latency:     time.Duration(cfg.Software.LatencyMicros) * time.Microsecond,
			BufferCount: r.FrameCount,
			Width:       r.Width,
			Height:      r.Height,
		})
	}
	return nil, fmt.Errorf("%w: unknown backend `%s`", config.ErrInvalidConfig, r.Backend)
}

func (e *Engine) Initialize() error {
	if e.Stage() != EngineStageBootComplete {
		return fmt.Errorf("engine cannot initialize from stage %d", e.Stage())
	}
	e.setStage(EngineStageInitializing)

	backend, err := newBackend(e.gameInstance.ApplicationConfig, e.cfg)
	if err != nil {
		core.LogError("failed to create the %s backend: %s", e.cfg.Renderer.Backend, err)
		return err
	}
	e.backend = backend

	r, err := renderer.New(e.cfg.Renderer, backend.Device(), backend.Queue(), backend.Presenter())
	if err != nil {
		_ = backend.Shutdown()
		return err
	}
	e.renderer = r

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(r); err != nil {
			core.LogError("game initialization failed: %s", err)
			return err
		}
	}
	core.LogInfo("engine initialized with the %s backend and %d render thread(s)", e.cfg.Renderer.Backend, r.ThreadCount())
	e.setStage(EngineStageInitialized)
	return nil
}

// ApplyConfig takes a reloaded configuration. Only the log level can change
// on a running engine.
func (e *Engine) ApplyConfig(cfg config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Log.Level != e.cfg.Log.Level {
		core.SetLogLevel(cfg.Log.Level)
		core.LogInfo("log level set to %s", cfg.Log.Level)
		e.cfg.Log = cfg.Log
	}
	if cfg.Renderer != e.cfg.Renderer || cfg.Software != e.cfg.Software {
		core.LogWarn("renderer settings changed on disk; they apply on the next start")
	}
}

// Run drives frames until ctx is done, a game hook fails or max_frames is
// reached. A fatal renderer condition is returned as an error.
func (e *Engine) Run(ctx context.Context) (err error) {
	if e.Stage() != EngineStageInitialized {
		return fmt.Errorf("engine cannot run from stage %d", e.Stage())
	}
	e.setStage(EngineStageRunning)

	defer func() {
		if r := recover(); r != nil {
			fe, ok := core.AsFatal(r)
			if !ok {
				panic(r)
			}
			err = fe
		}
	}()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.cfg.Renderer.MaxFrames
	for frame := uint64(0); maxFrames == 0 || frame < maxFrames; frame++ {
		if ctx.Err() != nil {
			break
		}
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}

		e.renderer.BeginRender()
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(e.renderer, delta); err != nil {
				e.renderer.EndRender()
				core.LogError("game render failed, shutting down: %s", err)
				return err
			}
		}
		e.renderer.EndRender()

		if err := e.renderer.Present(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return err
		}

		core.MetricsUpdate(time.Since(frameStart).Seconds())
		if (frame+1)%fpsLogInterval == 0 {
			fps, ms := core.MetricsFrame()
			core.LogInfo("FPS: %5.1f (%4.1fms)", fps, ms)
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) Shutdown() error {
	e.setStage(EngineStageShuttingDown)
	if e.renderer == nil {
		if e.backend != nil {
			return e.backend.Shutdown()
		}
		return nil
	}
	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(e.renderer); err != nil {
			errs = append(errs, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.renderer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.backend.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.renderer = nil
	e.backend = nil
	e.setStage(EngineStageUninitialized)
	return errors.Join(errs...)
}
