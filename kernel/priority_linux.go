//go:build linux

package kernel

import (
	"golang.org/x/sys/unix"

	"github.com/xxha/p2goemu/vlog"
)

// applyHostSchedule maps an emulated task's policy and priority onto the
// real SCHED_FIFO/SCHED_RR priority of the OS thread the calling goroutine
// is locked to. This is the direct analogue of arm/task.c's use of
// pthread_setschedparam when a p2pthread task is created or re-prioritized:
// there, the emulation layer already hands the *real* priority to the host
// scheduler rather than just bookkeeping a number, and golang.org/x/sys/unix
// lets the Go port do the same thing instead of only emulating priority
// ordering at the wait-queue level.
//
// The caller must already hold the OS thread locked (runtime.LockOSThread)
// and must be running on the thread whose schedule is being changed: Linux
// SCHED_FIFO/SCHED_RR priority changes apply to the *calling* thread when
// pid 0 is passed to sched_setscheduler(2).
func applyHostSchedule(policy Policy, priority uint32) {
	schedPolicy := unix.SCHED_FIFO
	if policy == PolicyRoundRobin {
		schedPolicy = unix.SCHED_RR
	}
	lo, errLo := unix.SchedGetPriorityMin(schedPolicy)
	hi, errHi := unix.SchedGetPriorityMax(schedPolicy)
	if errLo != nil || errHi != nil || hi <= lo {
		// Not privileged, or the platform doesn't expose real-time
		// scheduling classes to this process (common in containers).
		// The emulated priority field remains authoritative for
		// wait-queue selection either way, so this is not fatal.
		vlog.VI(3).Infof("kernel: host SCHED_FIFO/RR range unavailable, emulating priority %d in software only", priority)
		return
	}
	// Scale the emulated 1..254 priority range onto [lo, hi].
	hostPri := lo + int((priority-MinPriority)*uint32(hi-lo)/(MaxAssignablePriority-MinPriority))
	err := unix.SchedSetscheduler(0, schedPolicy, &unix.SchedParam{Priority: int32(hostPri)})
	if err != nil {
		vlog.VI(3).Infof("kernel: sched_setscheduler(policy=%d, pri=%d) failed, emulating in software only: %v", schedPolicy, hostPri, err)
	}
}
