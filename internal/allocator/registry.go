package allocator

import "sync/atomic"

// Registry is the process-wide, bounded, append-only array of arena
// descriptors. Once an arena is published at a slot it is never removed;
// the arena count only ever increases.
//
// Slots are a fixed-size array of atomic pointers published with a
// release store and read with an acquire load, so a reader never
// observes a partially-initialized Arena.
type Registry struct {
	slots [MaxArenas]atomic.Pointer[Arena]
	count atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add reserves the next slot via an atomic fetch-add on the arena count.
// If the reserved slot would exceed MaxArenas, the reservation is
// rolled back and Add reports failure — callers must free the arena's
// backing OS region themselves. On success, arena.id is assigned
// (1-based) and the descriptor is published with a release store.
func (r *Registry) Add(a *Arena) (id int, ok bool) {
	idx := r.count.Add(1) - 1
	if idx >= MaxArenas {
		r.count.Add(-1)

		return 0, false
	}

	a.id = uint8(idx + 1)
	r.slots[idx].Store(a)

	return int(idx + 1), true
}

// Get returns the arena at the given 0-based index, or nil if the slot is
// out of range or not yet visible to this reader (a racing publisher that
// reserved the slot but hasn't stored its pointer yet — callers treat a
// nil slot the same as having reached the end of the registry).
func (r *Registry) Get(index int) *Arena {
	if index < 0 || index >= MaxArenas {
		return nil
	}

	return r.slots[index].Load()
}

// Count returns the number of arenas registered so far (including any
// whose publishing store a concurrent reader may not yet observe).
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// ByID returns the arena with the given 1-based id, or nil.
func (r *Registry) ByID(id int) *Arena {
	if id <= 0 || id > MaxArenas {
		return nil
	}

	return r.Get(id - 1)
}

// Each calls fn for every published arena in registry order, stopping
// early if fn returns false. A nil slot within [0, Count()) ends
// iteration rather than panicking, since a concurrent Add may have
// reserved that slot without having published its pointer yet.
func (r *Registry) Each(fn func(*Arena) bool) {
	n := r.Count()

	for i := 0; i < n && i < MaxArenas; i++ {
		a := r.Get(i)
		if a == nil {
			return
		}

		if !fn(a) {
			return
		}
	}
}
