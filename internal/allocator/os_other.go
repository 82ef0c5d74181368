//go:build !unix

package allocator

import (
	"sync"
	"time"
	"unsafe"
)

// otherOS is a portable fallback for hosts outside golang.org/x/sys/unix's
// reach. It cannot truly commit/decommit/reset physical pages: Commit and
// Reset are no-ops over plain Go-managed memory, and Decommit zero-fills
// a range that lies inside one of its own AllocAligned regions so that it
// reads as zero once it is committed again.
type otherOS struct{}

// NewOS returns the OS collaborator appropriate for this platform.
func NewOS() OS { return otherOS{} }

var processStart = time.Now()

// liveAllocs keeps the backing arrays of otherOS allocations reachable:
// a uintptr conversion is invisible to the garbage collector, so without
// this the buffer backing an AllocAligned result could be collected out
// from under the caller the moment AllocAligned returns.
var (
	liveAllocsMu sync.Mutex
	liveAllocs   = map[uintptr][]byte{}
)

func alignUpAddr(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func (otherOS) AllocAligned(size uintptr, _ bool) (uintptr, bool, bool) {
	if size == 0 {
		return 0, false, false
	}

	size = alignUpAddr(size, SegmentAlign)
	buf := make([]byte, size+SegmentAlign)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := alignUpAddr(base, SegmentAlign)

	liveAllocsMu.Lock()
	liveAllocs[aligned] = buf
	liveAllocsMu.Unlock()

	return aligned, false, true
}

func (otherOS) FreeAligned(addr, _ uintptr, _ bool) {
	liveAllocsMu.Lock()
	delete(liveAllocs, addr)
	liveAllocsMu.Unlock()
}

func (otherOS) Commit(_, _ uintptr) (bool, bool) { return true, true }

func (otherOS) Decommit(addr, size uintptr) bool {
	liveAllocsMu.Lock()
	defer liveAllocsMu.Unlock()

	for _, buf := range liveAllocs {
		base := uintptr(unsafe.Pointer(&buf[0]))
		if addr >= base && addr+size <= base+uintptr(len(buf)) {
			clear(buf[addr-base : addr-base+size])

			break
		}
	}

	return true
}

func (otherOS) Reset(_, _ uintptr) bool { return true }

func (otherOS) AllocHugePages(_ int, _ int, _ int64) (uintptr, int, uintptr, bool) {
	return 0, 0, 0, false
}

func (otherOS) FreeHugePages(_, _ uintptr) {}

func (otherOS) NumaNodeCount() int { return 1 }
func (otherOS) NumaCurrent() int   { return 0 }

func (otherOS) NowMS() int64 {
	return int64(time.Since(processStart) / time.Millisecond)
}

func (otherOS) Preloading() bool { return false }
