package renderer

import (
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// Drawable records the draw for one render job.
type Drawable interface {
	Kind() metadata.JobKind
	Draw(ctx *DrawContext, job *metadata.RenderJob)
}

// ObjectResolver turns a job target into the object that draws it.
type ObjectResolver interface {
	Resolve(h core.Handle) (Drawable, bool)
}

// Submitter receives the lists a worker closed during Process, in order.
type Submitter interface {
	Submit(threadIndex int, lists []metadata.CommandList)
}

// ProcessContext is everything a worker needs to drain its queue for one frame.
type ProcessContext struct {
	ThreadIndex        int
	CmdCtx             *CommandContext
	Draw               DrawContext
	Viewport           metadata.Viewport
	Scissor            metadata.Rect
	RTV                metadata.CPUDescriptorHandle
	DSV                *metadata.CPUDescriptorHandle
	JobsPerCommandList int
	Objects            ObjectResolver
	Submitter          Submitter
}

// RenderQueue is a per-worker FIFO of render jobs, rewound once per frame.
type RenderQueue struct {
	jobs        []metadata.RenderJob
	writeCursor int
	readCursor  int
	batch       []metadata.CommandList
}

func NewRenderQueue(maxNumJob int) *RenderQueue {
	if maxNumJob < 1 {
		core.Fatal(core.ErrMisuse, "render queue capacity must be at least 1, got %d", maxNumJob)
	}
	return &RenderQueue{jobs: make([]metadata.RenderJob, maxNumJob)}
}

func (q *RenderQueue) Add(job metadata.RenderJob) {
	if q.writeCursor >= len(q.jobs) {
		core.Fatal(core.ErrCapacityExhausted, "render queue full (%d jobs)", len(q.jobs))
	}
	q.jobs[q.writeCursor] = job
	q.writeCursor++
}

// Dispatch returns the next job in insertion order, or false once every
// added job has been dispatched.
func (q *RenderQueue) Dispatch() (*metadata.RenderJob, bool) {
	if q.readCursor >= q.writeCursor {
		return nil, false
	}
	job := &q.jobs[q.readCursor]
	q.readCursor++
	return job, true
}

// Process records every remaining job. A list is closed after each
// JobsPerCommandList jobs and once more for the remainder, then all closed
// lists go to the submitter in one call. It returns the number of jobs recorded.
func (q *RenderQueue) Process(ctx *ProcessContext) int {
	if ctx.JobsPerCommandList < 1 {
		core.Fatal(core.ErrMisuse, "jobs per command list must be at least 1, got %d", ctx.JobsPerCommandList)
	}
	q.batch = q.batch[:0]
	processed := 0
	inList := 0

	for {
		job, ok := q.Dispatch()
		if !ok {
			break
		}
		list := ctx.CmdCtx.GetCurrentCommandList()
		list.SetViewport(ctx.Viewport)
		list.SetScissorRect(ctx.Scissor)
		list.SetRenderTargets(ctx.RTV, ctx.DSV)

		obj, ok := ctx.Objects.Resolve(job.Target)
		if !ok {
			core.Fatal(core.ErrMisuse, "render job targets unknown object %s", job.Target)
		}
		if obj.Kind() != job.Kind {
			core.Fatal(core.ErrMisuse, "%s job targets a %s object", job.Kind, obj.Kind())
		}
		draw := ctx.Draw
		draw.List = list
		draw.ThreadIndex = ctx.ThreadIndex
		obj.Draw(&draw, job)

		processed++
		inList++
		if inList >= ctx.JobsPerCommandList {
			q.batch = append(q.batch, ctx.CmdCtx.Close())
			inList = 0
		}
	}
	if inList > 0 {
		q.batch = append(q.batch, ctx.CmdCtx.Close())
	}
	if len(q.batch) > 0 {
		ctx.Submitter.Submit(ctx.ThreadIndex, q.batch)
	}
	core.JobsProcessed.Add(float64(processed))
	return processed
}

// Free rewinds the queue. Jobs must not be referenced afterwards.
func (q *RenderQueue) Free() {
	q.writeCursor = 0
	q.readCursor = 0
}

func (q *RenderQueue) Len() int {
	return q.writeCursor - q.readCursor
}

func (q *RenderQueue) Cap() int {
	return len(q.jobs)
}
