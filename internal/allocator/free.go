package allocator

// Free releases a previously allocated run. ptr and size are the values
// returned alongside memid by the allocation call; size need not be
// block-aligned, the same way it wasn't on allocation.
//
// Invalid memids (unknown arena, out-of-range block index) and double
// frees are both reported through the diagnostic logger and the returned
// error rather than a panic. An invalid memid makes the free a no-op; a
// double free still schedules the purge and clears whichever inuse bits
// of the run were set. Neither is fatal.
func (m *Manager) Free(ptr uintptr, memid MemID, size uintptr, committed bool) error {
	if IsDirect(memid) {
		m.os.FreeAligned(ptr, size, committed)

		return nil
	}

	arenaID, _, blockIndex := DecodeMemID(memid)

	a := m.registry.ByID(int(arenaID))
	if a == nil {
		m.logger.Printf("allocator: free of memid %d: no such arena %d", memid, arenaID)

		return ErrInvalidFree
	}

	blockCount := uint64(ceilDiv(size, BlockSize))
	if blockCount == 0 {
		blockCount = 1
	}

	if blockIndex >= a.BlockCount() || blockIndex+blockCount > a.BlockCount() {
		m.logger.Printf("allocator: free of memid %d: block range [%d, %d) out of bounds for arena %d (%d blocks)",
			memid, blockIndex, blockIndex+blockCount, arenaID, a.BlockCount())

		return ErrInvalidFree
	}

	// Schedule the purge before clearing inuse: a concurrent allocator
	// that claims these blocks the instant inuse goes to zero will clear
	// the purge bits itself (see allocFrom), so purge must already be
	// marked pending by the time that race is possible.
	m.SchedulePurge(int(arenaID), blockIndex, int(blockCount))

	if allWereOne := a.inuse.UnclaimAcross(int(blockCount), blockIndex); !allWereOne {
		m.logger.Printf("allocator: double free detected for memid %d, block range [%d, %d) in arena %d",
			memid, blockIndex, blockIndex+blockCount, arenaID)

		return ErrDoubleFree
	}

	return nil
}
