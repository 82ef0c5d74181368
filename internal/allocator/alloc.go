package allocator

import (
	"fmt"
	"sort"

	"github.com/orizon-lang/orizon-arena/internal/runtime/numa"
)

// AllocRequest describes an allocation request. Requested commit and
// large-page flags are inputs here; the actual outcome of each is
// reported on AllocResult.
type AllocRequest struct {
	Size        uintptr
	Alignment   uintptr
	AlignOffset uintptr
	Commit      bool
	Large       bool
	NumaNode    int // -1 = any node
	ReqArenaID  int // -1 = none; otherwise a specific 1-based arena id
}

// AllocResult reports the outcome of a successful allocation.
type AllocResult struct {
	Ptr    uintptr
	MemID  MemID
	Commit bool
	Large  bool
	Pinned bool
	Zero   bool
}

// AllocAligned is the allocation engine's public entry point (component E).
// It selects a candidate arena (specific / NUMA-local / NUMA-remote),
// claims a run of blocks, arranges commit, and falls back to direct OS
// allocation when arenas can't or shouldn't service the request.
func (m *Manager) AllocAligned(req AllocRequest) (AllocResult, error) {
	if req.Size == 0 {
		return AllocResult{}, fmt.Errorf("allocator: zero-size allocation")
	}

	useArenas := req.Size >= MinObjSize && req.Alignment <= SegmentAlign && req.AlignOffset == 0

	if useArenas {
		if res, ok := m.tryArenas(req); ok {
			return res, nil
		}

		if req.ReqArenaID >= 0 {
			// A specific arena was requested and couldn't serve it: no
			// OS fallback in that case.
			return AllocResult{}, ErrOutOfMemory
		}
	}

	if m.opts.LimitOSAlloc {
		return AllocResult{}, ErrOutOfMemory
	}

	return m.allocDirect(req)
}

// Alloc is AllocAligned with SegmentAlign alignment and no offset, the
// largest alignment the arena path accepts.
func (m *Manager) Alloc(req AllocRequest) (AllocResult, error) {
	req.Alignment = SegmentAlign
	req.AlignOffset = 0

	return m.AllocAligned(req)
}

// tryArenas walks the candidate selection order: a named arena, then
// NUMA-local arenas, then any arena, then an eagerly reserved new arena.
func (m *Manager) tryArenas(req AllocRequest) (AllocResult, bool) {
	if req.NumaNode < 0 {
		req.NumaNode = m.os.NumaCurrent()
	}

	if req.ReqArenaID >= 0 {
		a := m.registry.ByID(req.ReqArenaID)
		if a == nil || !candidateSuitable(a, req) {
			return AllocResult{}, false
		}

		return m.allocFrom(a, req)
	}

	if res, ok := m.scanArenas(req, true); ok {
		return res, true
	}

	if res, ok := m.scanArenas(req, false); ok {
		return res, true
	}

	if m.registry.Count() < (MaxArenas*3)/4 && m.opts.ArenaReserve >= req.Size {
		if a, err := m.reserveEagerArena(req.Size); err == nil {
			if res, ok := m.allocFrom(a, req); ok {
				return res, true
			}
		}
	}

	return AllocResult{}, false
}

// candidateSuitable checks the reject conditions that apply to a
// candidate arena, independent of whether it was named explicitly or
// reached by the NUMA walk.
func candidateSuitable(a *Arena, req AllocRequest) bool {
	if a.IsLarge() && !req.Large {
		return false
	}

	if a.NumaNode() >= 0 && req.NumaNode >= 0 && a.NumaNode() != req.NumaNode {
		return false
	}

	return true
}

// scanArenas walks the registry once. localOnly restricts the pass to
// arenas whose NUMA node is unset or matches req.NumaNode and tries them
// in registry order; the second, NUMA-indifferent pass instead visits
// every candidate, including the local ones the first pass already
// tried, ordered from nearest to farthest from
// req.NumaNode, so a remote arena on a close node is preferred over one
// on a distant node.
func (m *Manager) scanArenas(req AllocRequest, localOnly bool) (AllocResult, bool) {
	if localOnly {
		var (
			res   AllocResult
			found bool
		)

		m.registry.Each(func(a *Arena) bool {
			if !a.acceptsRequest(-1) || (a.IsLarge() && !req.Large) {
				return true
			}

			if a.NumaNode() >= 0 && a.NumaNode() != req.NumaNode {
				return true
			}

			if r, ok := m.allocFrom(a, req); ok {
				res, found = r, true

				return false
			}

			return true
		})

		return res, found
	}

	var candidates []*Arena

	m.registry.Each(func(a *Arena) bool {
		if a.acceptsRequest(-1) && (!a.IsLarge() || req.Large) {
			candidates = append(candidates, a)
		}

		return true
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return numa.Distance(req.NumaNode, candidates[i].NumaNode()) < numa.Distance(req.NumaNode, candidates[j].NumaNode())
	})

	for _, a := range candidates {
		if r, ok := m.allocFrom(a, req); ok {
			return r, true
		}
	}

	return AllocResult{}, false
}

// allocFrom implements alloc_from: claim a run of blocks from a, arrange
// commit, and encode the memid.
func (m *Manager) allocFrom(a *Arena, req AllocRequest) (AllocResult, bool) {
	if !a.acceptsRequest(req.ReqArenaID) {
		return AllocResult{}, false
	}

	bcount := ceilDiv(req.Size, BlockSize)

	idx, ok := a.inuse.TryFindFromClaimAcross(a.searchIdx.Load(), int(bcount))
	if !ok {
		return AllocResult{}, false
	}

	// Commit side effects run in a fixed order: advance the search hint,
	// clear any pending purge, then settle dirty/committed state.
	a.searchIdx.Store(idx)

	if a.purge != nil {
		a.purge.UnclaimAcross(int(bcount), idx)
	}

	zero := a.dirty.ClaimAcross(int(bcount), idx)

	var commitOut bool

	switch {
	case a.committed == nil:
		commitOut = true
	case req.Commit:
		commitOut = true

		if anyWasZero := a.committed.ClaimAcross(int(bcount), idx); anyWasZero {
			if zeroed, ok := m.os.Commit(a.BlockAddress(idx), uintptr(bcount)*BlockSize); ok && zeroed {
				zero = true
			}
		}
	default:
		commitOut = a.committed.IsClaimedAcross(int(bcount), idx)
	}

	memid := EncodeMemID(a.ID(), a.Exclusive(), idx)
	pinned := a.IsLarge() || !a.AllowDecommit()

	return AllocResult{
		Ptr:    a.BlockAddress(idx),
		MemID:  memid,
		Commit: commitOut,
		Large:  a.IsLarge(),
		Pinned: pinned,
		Zero:   zero,
	}, true
}

// allocDirect falls through to the OS collaborator with no arena
// involved at all (memid 0).
func (m *Manager) allocDirect(req AllocRequest) (AllocResult, error) {
	addr, large, ok := m.os.AllocAligned(req.Size, true)
	if !ok {
		return AllocResult{}, ErrOutOfMemory
	}

	return AllocResult{
		Ptr:    addr,
		MemID:  directMemID,
		Commit: true,
		Large:  large,
		Pinned: true,
		Zero:   true,
	}, nil
}
