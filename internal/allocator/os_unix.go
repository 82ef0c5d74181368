//go:build unix

package allocator

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/orizon-lang/orizon-arena/internal/runtime/numa"
)

// unixOS implements OS with real mmap/mprotect/madvise syscalls, gated
// behind a //go:build unix file so non-unix platforms link a pure-Go
// fallback instead.
type unixOS struct{}

// NewOS returns the OS collaborator appropriate for this platform.
func NewOS() OS { return unixOS{} }

var processStart = time.Now()

const hugePageSize = 2 << 20 // 2 MiB, the common x86-64 huge page size

func alignUpAddr(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func byteView(addr, size uintptr) []byte {
	if size == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)) //nolint:govet
}

func (unixOS) AllocAligned(size uintptr, commit bool) (uintptr, bool, bool) {
	if size == 0 {
		return 0, false, false
	}

	size = alignUpAddr(size, SegmentAlign)

	prot := unix.PROT_NONE
	if commit {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}

	// mmap only guarantees page alignment, not SegmentAlign alignment, so
	// over-map by one extra segment and trim the unaligned head/tail —
	// munmap accepts any page-aligned sub-range of a prior mapping.
	total := size + SegmentAlign

	raw, err := unix.Mmap(-1, 0, int(total), prot, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, false, false
	}

	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := alignUpAddr(base, SegmentAlign)

	if head := aligned - base; head > 0 {
		_ = unix.Munmap(raw[:head])
	}

	tailStart := aligned - base + size
	if tailStart < uintptr(len(raw)) {
		_ = unix.Munmap(raw[tailStart:])
	}

	return aligned, false, true
}

func (unixOS) FreeAligned(addr, size uintptr, _ bool) {
	if addr == 0 || size == 0 {
		return
	}

	_ = unix.Munmap(byteView(addr, alignUpAddr(size, SegmentAlign)))
}

func (unixOS) Commit(addr, size uintptr) (bool, bool) {
	if err := unix.Mprotect(byteView(addr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return false, false
	}
	// Anonymous mappings are always zero-filled by the kernel on first
	// touch, so a freshly committed range reads as zero.
	return true, true
}

func (unixOS) Decommit(addr, size uintptr) bool {
	if err := unix.Madvise(byteView(addr, size), unix.MADV_DONTNEED); err != nil {
		return false
	}

	return unix.Mprotect(byteView(addr, size), unix.PROT_NONE) == nil
}

func (unixOS) Reset(addr, size uintptr) bool {
	return unix.Madvise(byteView(addr, size), unix.MADV_DONTNEED) == nil
}

// AllocHugePages does not apply the numaNode argument: the mapping is not
// bound to any NUMA node.
func (unixOS) AllocHugePages(pages int, _ int, timeoutMS int64) (uintptr, int, uintptr, bool) {
	if pages <= 0 {
		return 0, 0, 0, false
	}

	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	remaining := pages

	for remaining > 0 {
		size := uintptr(remaining) * hugePageSize

		raw, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_HUGETLB)
		if err == nil {
			return uintptr(unsafe.Pointer(&raw[0])), remaining, hugePageSize, true
		}

		if timeoutMS > 0 && time.Now().After(deadline) {
			break
		}

		// Partial reservation is explicitly allowed: retry with fewer
		// pages rather than failing the whole request outright.
		remaining /= 2
	}

	return 0, 0, 0, false
}

func (unixOS) FreeHugePages(addr, size uintptr) {
	if addr == 0 || size == 0 {
		return
	}

	_ = unix.Munmap(byteView(addr, size))
}

func (unixOS) NumaNodeCount() int { return numa.NodeCount() }
func (unixOS) NumaCurrent() int   { return numa.CurrentNode() }

func (unixOS) NowMS() int64 {
	return int64(time.Since(processStart) / time.Millisecond)
}

// Preloading always reports false: Go programs have no dynamic-linker
// preloading phase analogous to a C allocator's early-startup window.
func (unixOS) Preloading() bool { return false }
