package core

import (
	"fmt"
	"sync"
)

// Handle identifies an entry of an IdentifierRegistry. The generation makes a
// handle stale once its slot has been released and reused.
type Handle struct {
	ID         uint32
	Generation uint32
}

// InvalidHandle never resolves.
var InvalidHandle = Handle{ID: ^uint32(0)}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.ID, h.Generation)
}

type identifierEntry[T any] struct {
	owner      T
	generation uint32
	live       bool
}

// IdentifierRegistry hands out stable ids for owners that live outside of
// the render queues. Free slots are reused before the registry grows.
type IdentifierRegistry[T any] struct {
	mu     sync.RWMutex
	owners []identifierEntry[T]
}

func NewIdentifierRegistry[T any](initialCapacity int) *IdentifierRegistry[T] {
	return &IdentifierRegistry[T]{
		owners: make([]identifierEntry[T], 0, initialCapacity),
	}
}

func (r *IdentifierRegistry[T]) AquireNewID(owner T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	length := uint32(len(r.owners))
	for i := uint32(0); i < length; i++ {
		// Existing free spot. Take it.
		if !r.owners[i].live {
			r.owners[i].owner = owner
			r.owners[i].live = true
			return Handle{ID: i, Generation: r.owners[i].generation}
		}
	}

	// No existing free slots, push one.
	r.owners = append(r.owners, identifierEntry[T]{owner: owner, live: true})
	return Handle{ID: length, Generation: 0}
}

func (r *IdentifierRegistry[T]) ReleaseID(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	length := uint32(len(r.owners))
	if h.ID >= length {
		return fmt.Errorf("identifier_release_id: id '%d' out of range (max=%d). Nothing was done", h.ID, length)
	}
	e := &r.owners[h.ID]
	if !e.live || e.generation != h.Generation {
		return fmt.Errorf("identifier_release_id: handle '%s' is stale. Nothing was done", h)
	}

	var zero T
	e.owner = zero
	e.live = false
	e.generation++
	return nil
}

// Lookup resolves a handle. Stale or unknown handles return false.
func (r *IdentifierRegistry[T]) Lookup(h Handle) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if h.ID >= uint32(len(r.owners)) {
		return zero, false
	}
	e := r.owners[h.ID]
	if !e.live || e.generation != h.Generation {
		return zero, false
	}
	return e.owner, true
}

// Len returns the number of live entries.
func (r *IdentifierRegistry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for i := range r.owners {
		if r.owners[i].live {
			n++
		}
	}
	return n
}

// Each visits every live entry. fn must not call back into the registry.
func (r *IdentifierRegistry[T]) Each(fn func(h Handle, owner T)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.owners {
		if r.owners[i].live {
			fn(Handle{ID: uint32(i), Generation: r.owners[i].generation}, r.owners[i].owner)
		}
	}
}
