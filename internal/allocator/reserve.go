package allocator

// reserve.go is the reservation façade: the handful of entry points for
// turning raw OS memory into a registered arena (ManageOSMemory,
// ReserveOSMemory, ReserveHugePagesAt, ReserveHugePagesInterleave), plus
// the internal eager-reservation path the allocation engine calls when no
// existing arena can serve a request.

// registerArena builds an Arena from p and publishes it into the
// registry. Callers that reserved OS memory themselves are responsible
// for releasing it if registration fails.
func (m *Manager) registerArena(p ArenaParams) (int, *Arena, error) {
	a, err := NewArena(p)
	if err != nil {
		return 0, nil, err
	}

	id, ok := m.registry.Add(a)
	if !ok {
		return 0, nil, ErrRegistryFull
	}

	return id, a, nil
}

// ManageOSMemory registers a region the caller already owns (e.g. one
// reserved outside this package, or recovered from a previous run) as a
// new arena. It never touches OS memory itself.
func (m *Manager) ManageOSMemory(start, size uintptr, isCommitted, isLarge, isZero bool, numaNode int) (int, error) {
	id, _, err := m.registerArena(ArenaParams{
		Start:         start,
		Size:          size,
		NumaNode:      numaNode,
		IsZeroInit:    isZero,
		IsLarge:       isLarge,
		AllowDecommit: !isLarge,
		IsCommitted:   isCommitted,
	})

	return id, err
}

// ReserveOSMemory reserves size bytes (rounded up to a whole number of
// blocks) from the OS collaborator and registers the result as a new
// arena.
func (m *Manager) ReserveOSMemory(size uintptr, commit bool, allowLarge bool, numaNode int) (int, error) {
	reserveSize := roundUpBlock(size)

	addr, large, ok := m.os.AllocAligned(reserveSize, commit)
	if !ok {
		return 0, ErrOutOfMemory
	}

	large = large && allowLarge

	id, _, err := m.registerArena(ArenaParams{
		Start:         addr,
		Size:          reserveSize,
		NumaNode:      numaNode,
		IsZeroInit:    true,
		IsLarge:       large,
		AllowDecommit: !large,
		IsCommitted:   commit,
	})
	if err != nil {
		m.os.FreeAligned(addr, reserveSize, commit)

		return 0, err
	}

	return id, nil
}

// reserveEagerArena is the allocation engine's step-3 fallback: reserve a
// new arena sized to the larger of opts.ArenaReserve and the immediate
// request, so the run it's about to claim fits.
func (m *Manager) reserveEagerArena(minSize uintptr) (*Arena, error) {
	size := m.opts.ArenaReserve
	if size < minSize {
		size = minSize
	}

	id, err := m.ReserveOSMemory(size, false, false, -1)
	if err != nil {
		return nil, err
	}

	return m.registry.ByID(id), nil
}

// ReserveHugePagesAt reserves up to pages huge pages pinned to numaNode
// (-1 for any) and registers the result as a new, always-committed,
// never-decommitted arena. Huge-page reservation is allowed to report
// partial success; the arena is sized to whatever was actually reserved.
func (m *Manager) ReserveHugePagesAt(numaNode int, pages int, timeoutMS int64) (int, error) {
	addr, pagesReserved, pageSize, ok := m.os.AllocHugePages(pages, numaNode, timeoutMS)
	if !ok || pagesReserved == 0 {
		return 0, ErrOutOfMemory
	}

	size := uintptr(pagesReserved) * pageSize

	id, _, err := m.registerArena(ArenaParams{
		Start:         addr,
		Size:          size,
		NumaNode:      numaNode,
		IsZeroInit:    true,
		IsLarge:       true,
		AllowDecommit: false,
		IsCommitted:   true,
	})
	if err != nil {
		m.os.FreeHugePages(addr, size)

		return 0, err
	}

	return id, nil
}

// ReserveHugePagesInterleave spreads totalPages huge pages evenly across
// every NUMA node the host reports, distributing the remainder to the
// first nodes and giving each node's reservation attempt a share of the
// overall timeout plus a fixed grace period. Nodes that fail to reserve
// any pages are skipped; ReserveHugePagesInterleave only fails outright
// if every node does.
func (m *Manager) ReserveHugePagesInterleave(totalPages int, timeoutMS int64) ([]int, error) {
	nodes := m.os.NumaNodeCount()
	if nodes <= 0 {
		nodes = 1
	}

	base := totalPages / nodes
	remainder := totalPages % nodes
	perNodeTimeout := timeoutMS/int64(nodes) + 50

	ids := make([]int, 0, nodes)

	for node := 0; node < nodes; node++ {
		pages := base
		if node < remainder {
			pages++
		}

		if pages == 0 {
			continue
		}

		id, err := m.ReserveHugePagesAt(node, pages, perNodeTimeout)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, ErrOutOfMemory
	}

	return ids, nil
}

func roundUpBlock(n uintptr) uintptr {
	return ceilDiv(n, BlockSize) * BlockSize
}
