package allocator

import "sync/atomic"

// Manager ties the registry, allocation engine, free path, and purge
// engine together behind one public API surface (AllocAligned, Alloc,
// Free, ArenaArea, ManageOSMemory, ReserveOSMemory, ReserveHugePagesAt,
// ReserveHugePagesInterleave). A Manager is meant to be process-wide, but
// is an explicit value rather than a package global so tests can run
// several independent managers in parallel against fake OS collaborators.
type Manager struct {
	os       OS
	opts     *Options
	registry *Registry
	logger   Logger

	// purging is the single process-wide purger guard: at most one
	// goroutine may run TryPurgeAll at a time.
	purging atomic.Bool
}

// NewManager constructs a Manager bound to the given OS collaborator.
func NewManager(os OS, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Manager{
		os:       os,
		opts:     o,
		registry: NewRegistry(),
		logger:   defaultLogger,
	}
}

// SetLogger overrides the default stdlib-log diagnostic sink.
func (m *Manager) SetLogger(l Logger) {
	if l != nil {
		m.logger = l
	}
}

// Registry exposes the underlying arena registry, e.g. for the
// reservation façade or diagnostics/statistics collaborators.
func (m *Manager) Registry() *Registry { return m.registry }

// ArenaArea returns the base address and size of the arena with the given
// 1-based id, or ok=false if no such arena is registered.
func (m *Manager) ArenaArea(arenaID int) (addr uintptr, size uintptr, ok bool) {
	a := m.registry.ByID(arenaID)
	if a == nil {
		return 0, 0, false
	}

	return a.Start(), a.Size(), true
}

func ceilDiv(n, d uintptr) uintptr {
	return (n + d - 1) / d
}
