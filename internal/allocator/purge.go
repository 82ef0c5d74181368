package allocator

// purge.go is the purge engine (component G): deferred decommit/reset of
// freed blocks, with a single process-wide purger guard so at most one
// goroutine ever walks the arena set at a time.

// SchedulePurge marks a freed run as pending purge. If the OS collaborator
// reports the process is still preloading, or the configured purge delay
// is zero, the run is purged immediately instead of deferred. Returns
// false if the arena doesn't exist or doesn't track purge state at all
// (always-committed arenas with AllowDecommit false never purge).
func (m *Manager) SchedulePurge(arenaID int, blockIndex uint64, blockCount int) bool {
	a := m.registry.ByID(arenaID)
	if a == nil || a.purge == nil {
		return false
	}

	if m.os.Preloading() || m.opts.ArenaPurgeDelayMS == 0 {
		m.purgeRange(a, blockIndex, blockCount)

		return true
	}

	now := m.os.NowMS()

	for {
		old := a.purgeExpire.Load()

		var next int64
		if old == 0 {
			next = now + m.opts.ArenaPurgeDelayMS
		} else {
			// Already pending: push the expiry out by a tenth of the
			// delay rather than restarting the full window, so a burst
			// of frees is coalesced into one slightly later purge.
			next = old + m.opts.ArenaPurgeDelayMS/10
		}

		if a.purgeExpire.CompareAndSwap(old, next) {
			break
		}
	}

	a.purge.ClaimAcross(blockCount, blockIndex)

	return true
}

// PurgeNow purges a run immediately, bypassing the deferral delay.
// Returns false if the arena doesn't exist or doesn't track purge state.
func (m *Manager) PurgeNow(arenaID int, blockIndex uint64, blockCount int) bool {
	a := m.registry.ByID(arenaID)
	if a == nil || a.purge == nil {
		return false
	}

	m.purgeRange(a, blockIndex, blockCount)

	return true
}

// purgeRange executes the actual OS-level reclaim for a run: decommit
// when opts.ResetDecommits is set and the process isn't preloading, or
// the softer reset otherwise. Decommit actually unmaps the pages, so the
// next commit is guaranteed to come back zeroed and dirty can be
// cleared. Reset is only a hint to the OS that the pages may be
// reclaimed; it gives no guarantee the range reads back as zero, so
// dirty bits conservatively stay set and the next allocation to claim
// them keeps reporting non-zero.
func (m *Manager) purgeRange(a *Arena, index uint64, count int) {
	addr := a.BlockAddress(index)
	size := uintptr(count) * BlockSize

	if m.opts.ResetDecommits && !m.os.Preloading() {
		if a.committed != nil {
			a.committed.UnclaimAcross(count, index)
		}

		m.os.Decommit(addr, size)
		a.dirty.UnclaimAcross(count, index)
	} else {
		m.os.Reset(addr, size)
	}
}

// TryPurge walks one arena's purge bitmap, purging every run whose
// deferral has expired (or every pending run, if force is true). A run
// is re-claimed in the inuse bitmap for the duration of the purge so a
// concurrent allocator can't hand the same memory out while it's being
// decommitted or reset. Returns false if the arena doesn't exist.
func (m *Manager) TryPurge(arenaID int, force bool) bool {
	a := m.registry.ByID(arenaID)
	if a == nil {
		return false
	}

	m.tryPurgeArena(a, m.os.NowMS(), force)

	return true
}

func (m *Manager) tryPurgeArena(a *Arena, now int64, force bool) {
	if a.purge == nil {
		return
	}

	expire := a.purgeExpire.Load()
	if expire == 0 {
		return
	}

	if !force && now < expire {
		return
	}

	if !a.purgeExpire.CompareAndSwap(expire, 0) {
		// Another goroutine already reset or extended it.
		return
	}

	count := a.BlockCount()

	for i := uint64(0); i < count; {
		if !a.purge.IsClaimedAcross(1, i) {
			i++

			continue
		}

		runStart := i
		for i < count && a.purge.IsClaimedAcross(1, i) {
			i++
		}

		runLen := int(i - runStart)

		if !a.inuse.TryClaim(runLen, runStart) {
			// Still live, or only partially pending; leave it for a
			// later pass rather than risk purging live memory. Re-arm
			// the expiry (unless a newer schedule already did) so that
			// later pass still finds it due.
			a.purgeExpire.CompareAndSwap(0, expire)

			continue
		}

		if a.purge.IsClaimedAcross(runLen, runStart) {
			m.purgeRange(a, runStart, runLen)
		}

		a.purge.UnclaimAcross(runLen, runStart)
		a.inuse.UnclaimAcross(runLen, runStart)
	}
}

// TryPurgeAll visits every registered arena and purges whatever is due.
// At most one TryPurgeAll runs at a time process-wide; a call that finds
// another already in flight returns immediately without doing anything.
// The purger is always non-blocking and best-effort: a busy caller simply
// skips this round and tries again later.
func (m *Manager) TryPurgeAll(force bool) {
	if !m.purging.CompareAndSwap(false, true) {
		return
	}
	defer m.purging.Store(false)

	now := m.os.NowMS()

	m.registry.Each(func(a *Arena) bool {
		m.tryPurgeArena(a, now, force)

		return true
	})
}
