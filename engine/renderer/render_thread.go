package renderer

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

type renderThreadEvent int

const (
	renderThreadProcess renderThreadEvent = iota
	renderThreadExit
)

var ErrNoWorkers = fmt.Errorf("attempting to create render thread pool with less than 1 worker")

// RenderThreadPool runs one goroutine per render worker. Run wakes every
// worker and returns once all of them finished their share of the frame.
type RenderThreadPool struct {
	workers   []chan renderThreadEvent
	remaining atomic.Int32
	completed chan struct{}
	group     errgroup.Group
	process   func(thread int)

	panicMu  sync.Mutex
	panicked interface{}
}

func NewRenderThreadPool(numWorkers int, process func(thread int)) (*RenderThreadPool, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	p := &RenderThreadPool{
		workers:   make([]chan renderThreadEvent, numWorkers),
		completed: make(chan struct{}, 1),
		process:   process,
	}
	for i := range p.workers {
		p.workers[i] = make(chan renderThreadEvent, 1)
		thread := i
		p.group.Go(func() error {
			return p.worker(thread)
		})
	}
	return p, nil
}

func (p *RenderThreadPool) worker(thread int) error {
	for ev := range p.workers[thread] {
		switch ev {
		case renderThreadProcess:
			p.runOne(thread)
		case renderThreadExit:
			return nil
		}
	}
	return nil
}

func (p *RenderThreadPool) runOne(thread int) {
	defer func() {
		if r := recover(); r != nil {
			p.panicMu.Lock()
			if p.panicked == nil {
				p.panicked = r
			}
			p.panicMu.Unlock()
		}
		if p.remaining.Dec() == 0 {
			p.completed <- struct{}{}
		}
	}()
	p.process(thread)
}

// Run processes one frame on every worker. A panic raised by a worker is
// re-raised here after all workers finished.
func (p *RenderThreadPool) Run() {
	p.remaining.Store(int32(len(p.workers)))
	for _, w := range p.workers {
		w <- renderThreadProcess
	}
	<-p.completed

	p.panicMu.Lock()
	r := p.panicked
	p.panicked = nil
	p.panicMu.Unlock()
	if r != nil {
		panic(r)
	}
}

func (p *RenderThreadPool) Len() int {
	return len(p.workers)
}

func (p *RenderThreadPool) Shutdown() error {
	for _, w := range p.workers {
		w <- renderThreadExit
	}
	return p.group.Wait()
}
