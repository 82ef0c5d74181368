package allocator

import "errors"

// All allocator failures are local: there are no panics on the
// allocation/free paths, only return codes (and, for invalid-free/
// double-free, a diagnostic log line).
var (
	// ErrOutOfMemory is returned when no arena can satisfy a request and
	// the OS fallback is disabled or itself fails.
	ErrOutOfMemory = errors.New("allocator: out of memory")

	// ErrInvalidFree is returned (never panics) when a memid decodes to a
	// nonexistent arena or an out-of-range block index.
	ErrInvalidFree = errors.New("allocator: invalid free")

	// ErrDoubleFree is returned (never panics) when unclaiming the inuse
	// bits of a freed run finds a bit that was already clear.
	ErrDoubleFree = errors.New("allocator: double free")

	// ErrRegistryFull is returned by reservation calls when the arena
	// registry has reached MaxArenas.
	ErrRegistryFull = errors.New("allocator: arena registry full")
)
