package renderer

import (
	"context"
	"fmt"
	"image"

	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// frameSlot holds the transient resources of one pending frame, indexed by worker.
type frameSlot struct {
	cmdCtx    []*CommandContext
	descPool  []*DescriptorPool
	cbManager []*ConstantBufferManager
	// device objects to free once this slot's fence is reached
	releases []func()
}

type renderObject struct {
	drawable Drawable
	pipeline metadata.PipelineKind
	release  func()
}

// submitCollector gathers the lists every worker closed so they can be
// submitted together, in worker order, once all workers finished.
type submitCollector struct {
	batches [][]metadata.CommandList
	all     []metadata.CommandList
}

func (c *submitCollector) Submit(threadIndex int, lists []metadata.CommandList) {
	c.batches[threadIndex] = append(c.batches[threadIndex], lists...)
}

func (c *submitCollector) flush(queue metadata.CommandQueue) {
	c.all = c.all[:0]
	for i := range c.batches {
		c.all = append(c.all, c.batches[i]...)
		c.batches[i] = c.batches[i][:0]
	}
	if len(c.all) == 0 {
		return
	}
	core.Must(queue.ExecuteCommandLists(c.all), "ExecuteCommandLists")
	core.CommandListsSubmitted.Add(float64(len(c.all)))
}

// Renderer drives frame-pipelined submission. Scene calls enqueue render
// jobs between BeginRender and EndRender; EndRender records them on the
// workers and submits the result; Present flips and recycles the oldest
// pending frame once the device is done with it.
//
// Apart from the workers it runs internally, the Renderer must be driven
// from a single goroutine.
type Renderer struct {
	cfg       config.RendererConfig
	device    metadata.Device
	queue     metadata.CommandQueue
	presenter metadata.Presenter

	fence     metadata.Fence
	pipeliner *FramePipeliner
	slots     []*frameSlot
	queues    []*RenderQueue
	threads   int
	nextQueue int
	workers   *RenderThreadPool
	collector *submitCollector

	objects     *core.IdentifierRegistry[renderObject]
	pipelines   *PipelineRegistry
	descriptors *DescriptorAllocator
	textures    *TextureManager
	camera      *Camera
	quad        *quadGeometry

	frame      DrawContext
	viewport   metadata.Viewport
	scissor    metadata.Rect
	rtv        metadata.CPUDescriptorHandle
	dsv        metadata.CPUDescriptorHandle
	inFrame    bool
	clearColor [4]float32
	frameCount uint64
}

func New(cfg config.RendererConfig, device metadata.Device, queue metadata.CommandQueue, presenter metadata.Presenter) (*Renderer, error) {
	if err := (config.Config{Renderer: cfg}).Validate(); err != nil {
		return nil, err
	}
	threads := cfg.ThreadCount()
	fence, err := device.CreateFence(0)
	if err != nil {
		core.LogError("failed to create frame fence: %s", err)
		return nil, err
	}

	r := &Renderer{
		cfg:        cfg,
		device:     device,
		queue:      queue,
		presenter:  presenter,
		fence:      fence,
		pipeliner:  NewFramePipeliner(queue, fence, cfg.FramePendingCount),
		threads:    threads,
		collector:  &submitCollector{batches: make([][]metadata.CommandList, threads)},
		objects:    core.NewIdentifierRegistry[renderObject](256),
		pipelines:  NewPipelineRegistry(device),
		clearColor: [4]float32{0, 0, 1, 1},
	}

	for s := 0; s < cfg.FramePendingCount; s++ {
		slot := &frameSlot{}
		for t := 0; t < threads; t++ {
			slot.cmdCtx = append(slot.cmdCtx, NewCommandContext(device, cfg.MaxCmdListsPerThread))
			slot.descPool = append(slot.descPool, NewDescriptorPool(device, cfg.MaxDescriptorsPerThread))
			slot.cbManager = append(slot.cbManager, NewConstantBufferManager(device, cfg.MaxDrawsPerThread))
		}
		r.slots = append(r.slots, slot)
	}
	for t := 0; t < threads; t++ {
		r.queues = append(r.queues, NewRenderQueue(cfg.MaxJobsPerThread))
	}

	r.descriptors = NewDescriptorAllocator(device, cfg.MaxPersistentDescriptors, false)
	if r.textures, err = NewTextureManager(device, r.descriptors); err != nil {
		core.LogError("failed to create texture manager: %s", err)
		return nil, err
	}
	if r.quad, err = newQuadGeometry(device); err != nil {
		core.LogError("failed to create sprite geometry: %s", err)
		return nil, err
	}

	width, height := presenter.Size()
	r.camera = NewCamera(width, height)
	r.viewport = metadata.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
	r.scissor = metadata.Rect{Right: int32(width), Bottom: int32(height)}

	if cfg.MultiThreaded {
		if r.workers, err = NewRenderThreadPool(threads, r.processThread); err != nil {
			return nil, err
		}
	}
	core.LogInfo("renderer ready: %d worker(s), %d pending frame(s), multithreaded=%t", threads, cfg.FramePendingCount, cfg.MultiThreaded)
	return r, nil
}

func (r *Renderer) currentSlot() *frameSlot {
	return r.slots[r.pipeliner.CurrentIndex()]
}

// BeginRender transitions the back buffer to a render target and clears it.
func (r *Renderer) BeginRender() {
	if r.inFrame {
		core.Fatal(core.ErrMisuse, "BeginRender called twice without EndRender")
	}
	r.inFrame = true

	bb := r.presenter.CurrentBackBufferIndex()
	r.rtv = r.presenter.RenderTargetView(bb)
	r.dsv = r.presenter.DepthStencilView()

	cc := r.currentSlot().cmdCtx[0]
	list := cc.GetCurrentCommandList()
	list.ResourceBarrier(r.presenter.BackBuffer(bb), metadata.ResourceStatePresent, metadata.ResourceStateRenderTarget)
	list.ClearRenderTargetView(r.rtv, r.clearColor)
	list.ClearDepthStencilView(r.dsv, 1)
	list.SetViewport(r.viewport)
	list.SetScissorRect(r.scissor)
	list.SetRenderTargets(r.rtv, &r.dsv)
	cc.CloseAndExecute(r.queue)
	core.CommandListsSubmitted.Inc()
}

// EndRender records every queued job, submits all worker lists in one batch
// and transitions the back buffer for presentation.
func (r *Renderer) EndRender() {
	if !r.inFrame {
		core.Fatal(core.ErrMisuse, "EndRender called without BeginRender")
	}
	width, height := r.presenter.Size()
	r.frame = DrawContext{
		Device:       r.device,
		Pipelines:    r.pipelines,
		Textures:     r.textures,
		View:         r.camera.View(),
		Projection:   r.camera.Projection(),
		ScreenWidth:  width,
		ScreenHeight: height,
	}

	if r.workers != nil {
		r.workers.Run()
	} else {
		for t := 0; t < r.threads; t++ {
			r.processThread(t)
		}
	}
	r.collector.flush(r.queue)

	bb := r.presenter.CurrentBackBufferIndex()
	cc := r.currentSlot().cmdCtx[0]
	list := cc.GetCurrentCommandList()
	list.ResourceBarrier(r.presenter.BackBuffer(bb), metadata.ResourceStateRenderTarget, metadata.ResourceStatePresent)
	cc.CloseAndExecute(r.queue)
	core.CommandListsSubmitted.Inc()
	r.inFrame = false
}

func (r *Renderer) processThread(thread int) {
	slot := r.currentSlot()
	draw := r.frame
	draw.DescPool = slot.descPool[thread]
	draw.CBManager = slot.cbManager[thread]
	pc := ProcessContext{
		ThreadIndex:        thread,
		CmdCtx:             slot.cmdCtx[thread],
		Draw:               draw,
		Viewport:           r.viewport,
		Scissor:            r.scissor,
		RTV:                r.rtv,
		DSV:                &r.dsv,
		JobsPerCommandList: r.cfg.JobsPerCmdList,
		Objects:            r,
		Submitter:          r.collector,
	}
	r.queues[thread].Process(&pc)
}

// Present signals the frame fence, flips, and recycles the next pending
// frame once the device finished with it.
func (r *Renderer) Present(ctx context.Context) error {
	if r.inFrame {
		core.Fatal(core.ErrMisuse, "Present called between BeginRender and EndRender")
	}
	if _, err := r.pipeliner.Fence(); err != nil {
		core.LogError("%s", err)
		return err
	}
	var flags metadata.PresentFlags
	if r.cfg.SyncInterval == 0 {
		flags |= metadata.PresentAllowTearing
	}
	if err := r.presenter.Present(r.cfg.SyncInterval, flags); err != nil {
		err = fmt.Errorf("failed to present frame %d: %w", r.frameCount, err)
		core.LogError("%s", err)
		return err
	}
	core.FramesPresented.Inc()
	r.frameCount++
	return r.pipeliner.Advance(ctx, r.resetSlot)
}

func (r *Renderer) resetSlot(i int) {
	s := r.slots[i]
	for t := 0; t < r.threads; t++ {
		s.cmdCtx[t].Free()
		s.descPool[t].Free()
		s.cbManager[t].Free()
	}
	for _, release := range s.releases {
		release()
	}
	s.releases = s.releases[:0]
	for _, q := range r.queues {
		q.Free()
	}
}

// deferRelease frees device objects once the frame being recorded retires.
func (r *Renderer) deferRelease(fn func()) {
	s := r.currentSlot()
	s.releases = append(s.releases, fn)
}

// GpuCompleted blocks until the device finished all submitted work.
func (r *Renderer) GpuCompleted(ctx context.Context) error {
	return r.pipeliner.Flush(ctx)
}

func (r *Renderer) Resolve(h core.Handle) (Drawable, bool) {
	obj, ok := r.objects.Lookup(h)
	if !ok {
		return nil, false
	}
	return obj.drawable, true
}

func (r *Renderer) addObject(d Drawable, kind metadata.PipelineKind, release func()) core.Handle {
	r.pipelines.Acquire(kind)
	return r.objects.AquireNewID(renderObject{drawable: d, pipeline: kind, release: release})
}

func (r *Renderer) CreateMeshObject(data metadata.MeshData) (core.Handle, error) {
	obj, err := newMeshObject(r.device, data)
	if err != nil {
		core.LogError("failed to create mesh object: %s", err)
		return core.InvalidHandle, err
	}
	return r.addObject(obj, metadata.PipelineKindMesh, obj.release), nil
}

func (r *Renderer) CreateSpriteObject() core.Handle {
	obj := &SpriteObject{quad: r.quad, texture: r.textures.Dummy()}
	return r.addObject(obj, metadata.PipelineKindSprite, nil)
}

// CreateSpriteObjectWithTexture binds tex to the sprite. A nil rect samples
// the whole texture.
func (r *Renderer) CreateSpriteObjectWithTexture(tex core.Handle, rect *metadata.Rect) (core.Handle, error) {
	if _, ok := r.textures.Info(tex); !ok {
		return core.InvalidHandle, fmt.Errorf("%w: %s", ErrUnknownTexture, tex)
	}
	obj := &SpriteObject{quad: r.quad, texture: tex}
	if rect != nil {
		obj.rect = *rect
		obj.hasRect = true
	}
	return r.addObject(obj, metadata.PipelineKindSprite, nil), nil
}

func (r *Renderer) CreateLineObject(data metadata.LineData) (core.Handle, error) {
	obj, err := newLineObject(r.device, data)
	if err != nil {
		core.LogError("failed to create line object: %s", err)
		return core.InvalidHandle, err
	}
	return r.addObject(obj, metadata.PipelineKindLine, obj.release), nil
}

// DestroyObject invalidates h at once. Its device objects are freed after
// every frame that may still use them completed.
func (r *Renderer) DestroyObject(h core.Handle) error {
	obj, ok := r.objects.Lookup(h)
	if !ok {
		return fmt.Errorf("destroy of unknown object %s", h)
	}
	if err := r.objects.ReleaseID(h); err != nil {
		return err
	}
	r.deferRelease(func() {
		if obj.release != nil {
			obj.release()
		}
		r.pipelines.Release(obj.pipeline)
	})
	return nil
}

func (r *Renderer) enqueue(job metadata.RenderJob) {
	if !r.inFrame {
		core.Fatal(core.ErrMisuse, "%s job enqueued outside BeginRender/EndRender", job.Kind)
	}
	r.queues[r.nextQueue].Add(job)
	r.nextQueue = (r.nextQueue + 1) % r.threads
}

func (r *Renderer) RenderMeshObject(h core.Handle, world math.Mat4) {
	r.enqueue(metadata.RenderJob{Kind: metadata.JobKindMesh, Target: h, Mesh: metadata.MeshJob{World: world}})
}

func (r *Renderer) RenderSpriteObject(h core.Handle, posX, posY int32, scaleX, scaleY, z float32) {
	r.enqueue(metadata.RenderJob{
		Kind:   metadata.JobKindSprite,
		Target: h,
		Sprite: metadata.SpriteJob{PosX: posX, PosY: posY, ScaleX: scaleX, ScaleY: scaleY, Z: z, Texture: core.InvalidHandle},
	})
}

// RenderSpriteObjectWithTexture draws h with tex instead of its own texture.
// A nil rect samples the whole texture.
func (r *Renderer) RenderSpriteObjectWithTexture(h core.Handle, posX, posY int32, scaleX, scaleY, z float32, rect *metadata.Rect, tex core.Handle) {
	job := metadata.RenderJob{
		Kind:   metadata.JobKindSprite,
		Target: h,
		Sprite: metadata.SpriteJob{PosX: posX, PosY: posY, ScaleX: scaleX, ScaleY: scaleY, Z: z, Texture: tex},
	}
	if rect != nil {
		job.Sprite.Rect = *rect
		job.Sprite.HasRect = true
	}
	r.enqueue(job)
}

func (r *Renderer) RenderLineObject(h core.Handle, world math.Mat4) {
	r.enqueue(metadata.RenderJob{Kind: metadata.JobKindLine, Target: h, Line: metadata.LineJob{World: world}})
}

func (r *Renderer) CreateTiledTexture(width, height uint32, red, green, blue uint8) (core.Handle, error) {
	return r.textures.CreateTiledTexture(width, height, red, green, blue)
}

func (r *Renderer) CreateDynamicTexture(width, height uint32) (core.Handle, error) {
	return r.textures.CreateDynamicTexture(width, height)
}

func (r *Renderer) UpdateTextureWithImage(tex core.Handle, img image.Image) error {
	return r.textures.UpdateTextureWithImage(tex, img)
}

func (r *Renderer) TextureInfo(tex core.Handle) (TextureInfo, bool) {
	return r.textures.Info(tex)
}

// DestroyTexture invalidates tex. Sprites still bound to it must not be drawn.
func (r *Renderer) DestroyTexture(tex core.Handle) error {
	release, err := r.textures.remove(tex)
	if err != nil {
		return err
	}
	r.deferRelease(release)
	return nil
}

func (r *Renderer) SetCamera(pos, dir math.Vec3) {
	r.camera.SetCamera(pos, dir)
}

func (r *Renderer) SetCameraPos(pos math.Vec3) {
	r.camera.SetCameraPos(pos)
}

func (r *Renderer) MoveFrontCamera(amount float32) {
	r.camera.MoveFront(amount)
}

func (r *Renderer) MoveRightCamera(amount float32) {
	r.camera.MoveRight(amount)
}

func (r *Renderer) MoveUpCamera(amount float32) {
	r.camera.MoveUp(amount)
}

func (r *Renderer) Camera() *Camera {
	return r.camera
}

func (r *Renderer) SetClearColor(c [4]float32) {
	r.clearColor = c
}

// CmdListCount is the number of command lists created across every context.
func (r *Renderer) CmdListCount() int {
	n := 0
	for _, s := range r.slots {
		for _, cc := range s.cmdCtx {
			n += cc.CmdListCount()
		}
	}
	return n
}

func (r *Renderer) ThreadCount() int {
	return r.threads
}

func (r *Renderer) FrameCount() uint64 {
	return r.frameCount
}

func (r *Renderer) Pipeliner() *FramePipeliner {
	return r.pipeliner
}

// Shutdown waits for the device and frees everything the renderer created.
func (r *Renderer) Shutdown(ctx context.Context) error {
	if err := r.pipeliner.Flush(ctx); err != nil {
		core.LogError("renderer shutdown could not drain the device: %s", err)
		return err
	}
	if r.workers != nil {
		if err := r.workers.Shutdown(); err != nil {
			return err
		}
	}
	for _, s := range r.slots {
		for _, release := range s.releases {
			release()
		}
		s.releases = nil
		for t := 0; t < r.threads; t++ {
			s.cmdCtx[t].Shutdown()
			s.descPool[t].Shutdown()
			s.cbManager[t].Shutdown()
		}
	}

	var live []core.Handle
	r.objects.Each(func(h core.Handle, _ renderObject) {
		live = append(live, h)
	})
	for _, h := range live {
		obj, _ := r.objects.Lookup(h)
		_ = r.objects.ReleaseID(h)
		if obj.release != nil {
			obj.release()
		}
		r.pipelines.Release(obj.pipeline)
	}

	r.textures.Shutdown()
	r.descriptors.Shutdown()
	r.quad.release()
	r.fence.Release()
	core.LogInfo("renderer shut down after %d frame(s)", r.frameCount)
	return nil
}
