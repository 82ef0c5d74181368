//go:build linux

package numa

import "golang.org/x/sys/unix"

// currentCPUHint asks the kernel which CPU is currently running this
// goroutine via getcpu(2). Best-effort: a goroutine can be rescheduled to
// another CPU immediately after the call returns, so this is a hint for
// candidate-arena ordering, never a correctness guarantee.
func currentCPUHint() int {
	var cpu, node uint32
	if err := unix.Getcpu(&cpu, &node); err != nil {
		return 0
	}

	return int(cpu)
}
