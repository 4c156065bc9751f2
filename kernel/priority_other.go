//go:build !linux

package kernel

// applyHostSchedule is a no-op on platforms without SCHED_FIFO/SCHED_RR
// (see priority_linux.go). Wait-queue selection never consults the host
// scheduler's notion of priority, only the emulated Task.priority field, so
// behavior is unaffected -- only the "real" host preemption benefit is
// unavailable.
func applyHostSchedule(policy Policy, priority uint32) {}
