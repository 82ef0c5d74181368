// Package allocator implements the arena manager of a general-purpose
// memory allocator: a process-wide facility that partitions large,
// pre-reserved OS regions into fixed-size blocks and hands out contiguous
// multi-block runs to higher-level allocators concurrently from many
// goroutines.
//
// Each arena is governed by parallel atomic bitmaps rather than a single
// bump pointer or mutex, so concurrent callers can claim, free, and purge
// blocks without serializing on one lock.
package allocator

import (
	"fmt"
	"sync/atomic"
)

const (
	// SegmentAlign is the alignment every arena region and every block
	// offset within it must satisfy.
	SegmentAlign = 8 << 20 // 8 MiB

	// BlockSize is the allocation unit arenas hand out: 4x SegmentAlign.
	BlockSize = 4 * SegmentAlign // 32 MiB

	// MinObjSize is the smallest request size arenas will service; smaller
	// requests bypass arenas entirely and go straight to the OS.
	MinObjSize = BlockSize / 2 // 16 MiB

	// MaxArenas bounds the process-wide arena registry.
	MaxArenas = 64
)

// Arena describes one contiguous OS region managed as an array of
// BlockSize blocks, plus the atomic bitmaps that track their state.
//
// Once published into a Registry, an Arena's start/blockCount/flags never
// change; only its bitmaps and the searchIdx/purgeExpire control words
// mutate, all via atomics — there are no per-arena locks.
type Arena struct {
	inuse     *Bitmap
	dirty     *Bitmap
	committed *Bitmap // nil unless allowDecommit
	purge     *Bitmap // nil unless allowDecommit

	searchIdx   atomic.Uint64
	purgeExpire atomic.Int64 // monotonic ms; 0 means no purge pending

	start      uintptr
	blockCount uint64
	fieldCount int
	numaNode   int // -1 = any node

	id            uint8
	exclusive     bool
	isZeroInit    bool
	isLarge       bool
	allowDecommit bool
}

// ArenaParams configures a new Arena. See NewArena.
type ArenaParams struct {
	Start         uintptr
	Size          uintptr // rounded down to a whole number of blocks
	NumaNode      int     // -1 = any
	Exclusive     bool
	IsZeroInit    bool
	IsLarge       bool
	AllowDecommit bool
	IsCommitted   bool // pre-fills blocks_committed with all-ones
}

// NewArena constructs an Arena descriptor for a region the caller has
// already reserved from the OS. It does not itself touch OS memory; see
// the reservation façade (reserve.go) for that.
func NewArena(p ArenaParams) (*Arena, error) {
	if p.IsLarge && p.AllowDecommit {
		return nil, fmt.Errorf("allocator: large-page arenas cannot allow decommit")
	}

	blockCount := uint64(p.Size / BlockSize)
	if blockCount == 0 {
		return nil, fmt.Errorf("allocator: region of %d bytes is smaller than one block (%d bytes)", p.Size, uintptr(BlockSize))
	}

	fieldCount := int((blockCount + fieldBits - 1) / fieldBits)

	a := &Arena{
		start:         p.Start,
		blockCount:    blockCount,
		fieldCount:    fieldCount,
		numaNode:      p.NumaNode,
		exclusive:     p.Exclusive,
		isZeroInit:    p.IsZeroInit,
		isLarge:       p.IsLarge,
		allowDecommit: p.AllowDecommit,
		inuse:         NewBitmap(fieldCount),
		dirty:         NewBitmap(fieldCount),
	}

	// Invariant 4: trailing bits beyond block_count in the last field are
	// permanently marked in-use so no claim can ever select them.
	totalBits := uint64(fieldCount) * fieldBits
	if trailing := totalBits - blockCount; trailing > 0 {
		a.inuse.SetRange(blockCount, int(trailing))
	}

	if p.AllowDecommit {
		a.committed = NewBitmap(fieldCount)
		a.purge = NewBitmap(fieldCount)

		if p.IsCommitted {
			a.committed.SetAll()
		}
	}
	// Invariant 5: is_large arenas are always committed and never
	// decommit; the absence of a committed bitmap already signals
	// "always committed" to the allocation engine's commit policy.

	return a, nil
}

// ID returns the arena's 1-based registry id, or 0 before registration.
func (a *Arena) ID() uint8 { return a.id }

// Exclusive reports whether only requests naming this arena's id may
// allocate from it.
func (a *Arena) Exclusive() bool { return a.exclusive }

// NumaNode returns the arena's pinned NUMA node, or -1 if unpinned.
func (a *Arena) NumaNode() int { return a.numaNode }

// IsLarge reports whether the arena is backed by huge/large OS pages.
func (a *Arena) IsLarge() bool { return a.isLarge }

// AllowDecommit reports whether the arena tracks committed/purge state
// and may decommit free blocks.
func (a *Arena) AllowDecommit() bool { return a.allowDecommit }

// BlockCount returns the number of blocks in the arena.
func (a *Arena) BlockCount() uint64 { return a.blockCount }

// Start returns the base address of the arena's region.
func (a *Arena) Start() uintptr { return a.start }

// Size returns the size in bytes of the arena's region.
func (a *Arena) Size() uintptr { return uintptr(a.blockCount) * BlockSize }

// BlockAddress returns the address of the block at the given index.
func (a *Arena) BlockAddress(blockIndex uint64) uintptr {
	return a.start + uintptr(blockIndex)*BlockSize
}

// acceptsRequest reports whether this arena may serve a request: a
// request naming no specific arena (reqArenaID < 0) may only land on a
// non-exclusive arena; a request naming this arena's id may land here
// regardless of the exclusive flag.
func (a *Arena) acceptsRequest(reqArenaID int) bool {
	if reqArenaID < 0 {
		return !a.exclusive
	}

	return reqArenaID == int(a.id)
}
