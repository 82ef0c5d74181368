package allocator

import "sync"

// fakeOS is a deterministic, in-process stand-in for the OS collaborator:
// no real syscalls, a controllable clock, and enough bookkeeping to
// assert on committed/decommitted ranges from tests. Hand-written rather
// than generated or mocked, so the test files can read as plain Go.
type fakeOS struct {
	mu sync.Mutex

	next        uintptr
	now         int64
	preloading  bool
	numaNodes   int
	numaCurrent int

	committed   map[uintptr]bool // addr -> currently committed
	decommitLog []uintptr
	resetLog    []uintptr
	freed       []uintptr

	hugePagesAvail int
	hugePageSize   uintptr
	denyAlloc      bool
}

func newFakeOS() *fakeOS {
	return &fakeOS{
		next:           SegmentAlign, // keep addr 0 reserved as "never a real pointer"
		numaNodes:      1,
		committed:      map[uintptr]bool{},
		hugePagesAvail: 1 << 20,
		hugePageSize:   2 << 20,
	}
}

func (f *fakeOS) AllocAligned(size uintptr, commit bool) (uintptr, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.denyAlloc || size == 0 {
		return 0, false, false
	}

	size = alignUpAddr(size, SegmentAlign)
	addr := alignUpAddr(f.next, SegmentAlign)
	f.next = addr + size

	if commit {
		f.committed[addr] = true
	}

	return addr, false, true
}

func (f *fakeOS) FreeAligned(addr, _ uintptr, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.freed = append(f.freed, addr)
	delete(f.committed, addr)
}

func (f *fakeOS) Commit(addr, _ uintptr) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wasCommitted := f.committed[addr]
	f.committed[addr] = true

	return !wasCommitted, true
}

func (f *fakeOS) Decommit(addr, _ uintptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.decommitLog = append(f.decommitLog, addr)
	delete(f.committed, addr)

	return true
}

func (f *fakeOS) Reset(addr, _ uintptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetLog = append(f.resetLog, addr)

	return true
}

func (f *fakeOS) AllocHugePages(pages int, _ int, _ int64) (uintptr, int, uintptr, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pages <= 0 || f.hugePagesAvail <= 0 {
		return 0, 0, 0, false
	}

	got := pages
	if got > f.hugePagesAvail {
		got = f.hugePagesAvail
	}

	f.hugePagesAvail -= got

	addr := alignUpAddr(f.next, SegmentAlign)
	f.next = addr + uintptr(got)*f.hugePageSize

	return addr, got, f.hugePageSize, true
}

func (f *fakeOS) FreeHugePages(addr, _ uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.freed = append(f.freed, addr)
}

func (f *fakeOS) NumaNodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.numaNodes
}

func (f *fakeOS) NumaCurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.numaCurrent
}

func (f *fakeOS) NowMS() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeOS) Preloading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.preloading
}

func (f *fakeOS) advance(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now += ms
}

func (f *fakeOS) isCommitted(addr uintptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.committed[addr]
}

var _ OS = (*fakeOS)(nil)
