package renderer

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/spaghettifunk/cadence/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFatal(t *testing.T, kind error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fatal panic")
		fe, ok := core.AsFatal(r)
		require.True(t, ok, "panic value %v is not a fatal error", r)
		assert.ErrorIs(t, fe, kind)
	}()
	fn()
}

func newTestDevice(t *testing.T, manual bool) (*software.Device, *software.Queue) {
	t.Helper()
	d := software.NewDevice()
	q := software.NewQueue(d, software.QueueConfig{Manual: manual, Depth: 64})
	t.Cleanup(q.Close)
	return d, q
}

// recordingDrawable remembers the list every job was drawn on.
type recordingDrawable struct {
	kind metadata.JobKind

	mu    sync.Mutex
	lists []metadata.CommandList
	jobs  []metadata.RenderJob
}

func (d *recordingDrawable) Kind() metadata.JobKind {
	return d.kind
}

func (d *recordingDrawable) Draw(ctx *DrawContext, job *metadata.RenderJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lists = append(d.lists, ctx.List)
	d.jobs = append(d.jobs, *job)
}

type registryResolver struct {
	reg *core.IdentifierRegistry[Drawable]
}

func (r registryResolver) Resolve(h core.Handle) (Drawable, bool) {
	return r.reg.Lookup(h)
}

type recordingSubmitter struct {
	threads []int
	batches [][]metadata.CommandList
}

func (s *recordingSubmitter) Submit(threadIndex int, lists []metadata.CommandList) {
	s.threads = append(s.threads, threadIndex)
	s.batches = append(s.batches, append([]metadata.CommandList(nil), lists...))
}
