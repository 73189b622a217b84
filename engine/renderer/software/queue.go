package software

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/cadence/engine/containers"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
)

type QueueConfig struct {
	// Latency delays the execution of every command list batch.
	Latency time.Duration
	// Manual disables the execution goroutine. Work only runs on Step or Flush.
	Manual bool
	// Depth bounds the number of queued batches and signals.
	Depth int
}

type submittedList struct {
	label string
	alloc *commandAllocator
	cmds  []command
}

type queueItem struct {
	lists []submittedList
	fence *Fence
	value uint64
	// present is run in order with the other work
	present func()
}

// Queue executes submitted work in order, either on its own goroutine or
// when the caller steps it.
type Queue struct {
	device *Device
	cfg    QueueConfig

	mu     sync.Mutex
	cond   *sync.Cond
	items  *containers.RingQueue[queueItem]
	closed bool
	done   chan struct{}
}

func NewQueue(device *Device, cfg QueueConfig) *Queue {
	if cfg.Depth <= 0 {
		cfg.Depth = 64
	}
	q := &Queue{
		device: device,
		cfg:    cfg,
		items:  containers.NewRingQueue[queueItem](cfg.Depth),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	if cfg.Manual {
		close(q.done)
	} else {
		go q.run()
	}
	return q
}

func (q *Queue) ExecuteCommandLists(lists []metadata.CommandList) error {
	if len(lists) == 0 {
		return nil
	}
	item := queueItem{lists: make([]submittedList, 0, len(lists))}
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("command list %T does not belong to the software device", l)
		}
		if cl.open {
			return fmt.Errorf("%s: %w", cl.label, ErrListOpen)
		}
		item.lists = append(item.lists, submittedList{label: cl.label, alloc: cl.alloc, cmds: cl.cmds})
	}
	for _, l := range item.lists {
		l.alloc.inFlight.Inc()
	}
	if err := q.enqueue(item); err != nil {
		for _, l := range item.lists {
			l.alloc.inFlight.Dec()
		}
		return err
	}
	return nil
}

func (q *Queue) Signal(fence metadata.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("fence %T does not belong to the software device", fence)
	}
	return q.enqueue(queueItem{fence: f, value: value})
}

func (q *Queue) enqueue(item queueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.IsFull() && !q.closed {
		if q.cfg.Manual {
			return fmt.Errorf("manual queue holds %d items: %w", q.items.Len(), containers.ErrQueueFull)
		}
		q.cond.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	if err := q.items.Enqueue(item); err != nil {
		return err
	}
	q.cond.Broadcast()
	return nil
}

// Pending is the number of batches and signals not yet executed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Step executes the oldest queued item and reports whether there was one.
// Only valid in manual mode.
func (q *Queue) Step() bool {
	if !q.cfg.Manual {
		core.Fatal(core.ErrMisuse, "Step called on a queue with its own goroutine")
	}
	q.mu.Lock()
	item, err := q.items.Dequeue()
	q.mu.Unlock()
	if err != nil {
		return false
	}
	q.process(item)
	return true
}

// Flush executes everything queued. Only valid in manual mode.
func (q *Queue) Flush() {
	for q.Step() {
	}
}

// Close stops accepting work and waits until every queued item ran.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
	if q.cfg.Manual {
		q.Flush()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for q.items.IsEmpty() && !q.closed {
			q.cond.Wait()
		}
		item, err := q.items.Dequeue()
		q.cond.Broadcast()
		q.mu.Unlock()
		if err != nil {
			// closed and drained
			return
		}
		if len(item.lists) > 0 && q.cfg.Latency > 0 {
			time.Sleep(q.cfg.Latency)
		}
		q.process(item)
	}
}

func (q *Queue) process(item queueItem) {
	if len(item.lists) > 0 {
		for _, l := range item.lists {
			q.device.execute(l.label, l.cmds)
			l.alloc.inFlight.Dec()
			q.device.stats.ListsExecuted.Inc()
		}
		q.device.stats.Batches.Inc()
	}
	if item.present != nil {
		item.present()
	}
	if item.fence != nil {
		item.fence.signal(item.value)
	}
}
