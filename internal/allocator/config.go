package allocator

// Options holds the arena manager's tunables: eager-reservation size,
// purge deferral delay, the reset-vs-decommit purge policy, and whether
// OS fallback is permitted at all. Modeled as a functional-options struct
// so callers can override only the knobs they care about.
type Options struct {
	// ArenaReserve is the size, in bytes, of a new arena eagerly reserved
	// when no existing arena can satisfy a request.
	ArenaReserve uintptr

	// ArenaPurgeDelayMS defers decommit of freed blocks by this many
	// milliseconds. Zero disables deferral: free blocks purge immediately.
	ArenaPurgeDelayMS int64

	// ResetDecommits makes the purge engine call Decommit instead of the
	// softer Reset when reclaiming free blocks.
	ResetDecommits bool

	// LimitOSAlloc disables the direct-OS-allocation fallback when no
	// arena can satisfy a request.
	LimitOSAlloc bool
}

// Option mutates an Options value. Functions named With* in this package
// each set one field.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		ArenaReserve:      0,
		ArenaPurgeDelayMS: 0,
		ResetDecommits:    false,
		LimitOSAlloc:      false,
	}
}

// WithArenaReserve sets the eager-reservation size.
func WithArenaReserve(size uintptr) Option {
	return func(o *Options) { o.ArenaReserve = size }
}

// WithArenaPurgeDelay sets the purge deferral delay in milliseconds.
func WithArenaPurgeDelay(ms int64) Option {
	return func(o *Options) { o.ArenaPurgeDelayMS = ms }
}

// WithResetDecommits toggles reset-vs-decommit purge policy.
func WithResetDecommits(enabled bool) Option {
	return func(o *Options) { o.ResetDecommits = enabled }
}

// WithLimitOSAlloc disables the direct-OS-allocation fallback.
func WithLimitOSAlloc(enabled bool) Option {
	return func(o *Options) { o.LimitOSAlloc = enabled }
}
