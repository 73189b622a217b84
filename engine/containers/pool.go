package containers

import (
	"github.com/spaghettifunk/cadence/engine/core"
)

// Pool is a fixed-capacity set of slots recycled in bulk. Every constructed
// slot is either in the available stack or in the used list, never both, and
// the number of slots never exceeds the capacity given at creation.
//
// Slots are constructed lazily by the factory the first time the available
// stack runs dry, or all at once with Prefill.
type Pool[T any] struct {
	name      string
	slots     []T
	available []int
	used      []int
	factory   func(index int) T
	highWater int
}

func NewPool[T any](capacity int, factory func(index int) T) *Pool[T] {
	if capacity < 1 {
		core.Fatal(core.ErrMisuse, "pool capacity must be at least 1, got %d", capacity)
	}
	return &Pool[T]{
		name:      "pool",
		slots:     make([]T, 0, capacity),
		available: make([]int, 0, capacity),
		used:      make([]int, 0, capacity),
		factory:   factory,
	}
}

// Named sets the label used in fatal messages and metrics.
func (p *Pool[T]) Named(name string) *Pool[T] {
	p.name = name
	return p
}

func (p *Pool[T]) Name() string {
	return p.name
}

// Prefill constructs every remaining slot up front. Alloc then hands the new
// slots out in ascending index order, after any already available.
func (p *Pool[T]) Prefill() *Pool[T] {
	first := len(p.slots)
	for len(p.slots) < cap(p.slots) {
		p.slots = append(p.slots, p.make(len(p.slots)))
	}
	fresh := make([]int, 0, len(p.slots)-first+len(p.available))
	for idx := len(p.slots) - 1; idx >= first; idx-- {
		fresh = append(fresh, idx)
	}
	p.available = append(fresh, p.available...)
	return p
}

func (p *Pool[T]) make(idx int) T {
	var item T
	if p.factory != nil {
		item = p.factory(idx)
	}
	return item
}

func (p *Pool[T]) construct() {
	idx := len(p.slots)
	p.slots = append(p.slots, p.make(idx))
	p.available = append(p.available, idx)
}

// Alloc moves one slot to the used list and returns its index and address.
// The address stays valid for the life of the pool.
func (p *Pool[T]) Alloc() (int, *T) {
	if len(p.available) == 0 {
		if len(p.slots) == cap(p.slots) {
			core.Fatal(core.ErrCapacityExhausted, "%s: all %d slots in use", p.name, cap(p.slots))
		}
		p.construct()
	}
	last := len(p.available) - 1
	idx := p.available[last]
	p.available = p.available[:last]
	p.used = append(p.used, idx)
	if len(p.used) > p.highWater {
		p.highWater = len(p.used)
	}
	return idx, &p.slots[idx]
}

// Reset returns every used slot to the available stack, calling fn on each
// one first. Slots come back in allocation order.
func (p *Pool[T]) Reset(fn func(index int, item *T)) {
	for i := len(p.used) - 1; i >= 0; i-- {
		idx := p.used[i]
		if fn != nil {
			fn(idx, &p.slots[idx])
		}
		p.available = append(p.available, idx)
	}
	p.used = p.used[:0]
}

// Each visits every constructed slot, used or not.
func (p *Pool[T]) Each(fn func(index int, item *T)) {
	for i := range p.slots {
		fn(i, &p.slots[i])
	}
}

// Get returns the slot at index. It does not change its state.
func (p *Pool[T]) Get(index int) *T {
	return &p.slots[index]
}

func (p *Pool[T]) Used() int {
	return len(p.used)
}

func (p *Pool[T]) Available() int {
	return len(p.available)
}

func (p *Pool[T]) Constructed() int {
	return len(p.slots)
}

func (p *Pool[T]) Cap() int {
	return cap(p.slots)
}

// HighWater is the largest number of slots simultaneously in use.
func (p *Pool[T]) HighWater() int {
	return p.highWater
}
