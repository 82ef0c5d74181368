//go:build !linux

package numa

// currentCPUHint has no portable getcpu(2) equivalent outside Linux in
// this toolchain's reach, so non-Linux hosts are treated as node 0 for the
// purposes of NUMA-local candidate ordering.
func currentCPUHint() int {
	return 0
}
