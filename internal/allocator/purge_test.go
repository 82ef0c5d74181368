package allocator

import "testing"

func TestPurge_ZeroDelayPurgesImmediatelyOnFree(t *testing.T) {
	os := newFakeOS()
	m := NewManager(os) // ArenaPurgeDelayMS defaults to 0

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if len(os.resetLog) != 1 || os.resetLog[0] != res.Ptr {
		t.Fatalf("expected an immediate reset of %#x, got log %v", res.Ptr, os.resetLog)
	}
}

func TestPurge_DeferredUntilExpiry(t *testing.T) {
	os := newFakeOS()
	m := NewManager(os, WithArenaPurgeDelay(1000))

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if len(os.resetLog) != 0 {
		t.Fatalf("purge must not run before the delay expires, got log %v", os.resetLog)
	}

	m.TryPurgeAll(false)

	if len(os.resetLog) != 0 {
		t.Fatalf("purge must not run before the delay expires even when TryPurgeAll is called, got log %v", os.resetLog)
	}

	os.advance(1000)
	m.TryPurgeAll(false)

	if len(os.resetLog) != 1 || os.resetLog[0] != res.Ptr {
		t.Fatalf("expected purge to run once the delay expired, got log %v", os.resetLog)
	}
}

func TestPurge_ResetDecommitsUsesDecommit(t *testing.T) {
	os := newFakeOS()
	m := NewManager(os, WithResetDecommits(true))

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if len(os.decommitLog) != 1 || os.decommitLog[0] != res.Ptr {
		t.Fatalf("expected ResetDecommits to call Decommit, got log %v", os.decommitLog)
	}

	if len(os.resetLog) != 0 {
		t.Fatalf("expected Reset not to be called when ResetDecommits is set")
	}
}

func TestPurge_PreloadingForcesImmediatePurge(t *testing.T) {
	os := newFakeOS()
	os.preloading = true

	m := NewManager(os, WithArenaPurgeDelay(60000))

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if len(os.resetLog) != 1 {
		t.Fatalf("preloading must force an immediate purge regardless of delay, got log %v", os.resetLog)
	}
}

func TestPurge_ReclaimedBlockIsReusable(t *testing.T) {
	os := newFakeOS()
	m := NewManager(os) // delay 0: purge runs on free, ResetDecommits false

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	res2, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("expected the freed (and purged) block to be reusable, got: %v", err)
	}

	// Reset gives no guarantee the range reads back as zero, so dirty
	// bits conservatively stay set across a reset-purge.
	if res2.Zero {
		t.Fatalf("expected a reset-purged block's next allocation to not claim zero")
	}
}

func TestPurge_ResetDecommitClearsDirtyOnReclaim(t *testing.T) {
	os := newFakeOS()
	m := NewManager(os, WithResetDecommits(true))

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	res2, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("expected the freed (and decommit-purged) block to be reusable, got: %v", err)
	}

	if !res2.Zero {
		t.Fatalf("expected a decommit-purged block's next allocation to report zero")
	}
}

func TestPurge_PreloadingUsesResetEvenWithResetDecommits(t *testing.T) {
	os := newFakeOS()
	os.preloading = true

	m := NewManager(os, WithResetDecommits(true))

	id, err := m.ReserveOSMemory(BlockSize, true, false, -1)
	if err != nil {
		t.Fatalf("ReserveOSMemory: %v", err)
	}

	res, err := m.Alloc(AllocRequest{Size: BlockSize, ReqArenaID: id})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := m.Free(res.Ptr, res.MemID, BlockSize, true); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if len(os.decommitLog) != 0 {
		t.Fatalf("preloading must disable decommit even when ResetDecommits is set, got log %v", os.decommitLog)
	}

	if len(os.resetLog) != 1 || os.resetLog[0] != res.Ptr {
		t.Fatalf("expected preloading to fall back to Reset, got log %v", os.resetLog)
	}
}
