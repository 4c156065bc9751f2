package kernel

import (
	"math"

	"github.com/xxha/p2goemu/nsync"
	"github.com/xxha/p2goemu/vlog"
)

// schedulerLock is the process-wide re-entrant exclusion of spec.md section
// 4.1. The design notes explicitly invite abandoning the original's
// "elevate the holder's priority above everyone else" trick in favor of a
// single coarse lock plus condition variables, provided the external
// contract -- atomicity between producers and waiters across a composite
// operation -- is preserved; that is the choice made here. nsync.Mu/CV give
// actual mutual exclusion (strictly stronger than priority elevation, which
// only *discourages* preemption), and applyHostSchedule still best-effort
// elevates the holder's real OS thread priority so that, where the host
// supports SCHED_FIFO/SCHED_RR, the holder is also least likely to be
// preempted involuntarily.
type schedulerLock struct {
	mu        nsync.Mu
	cond      nsync.CV
	owner     *Task
	recursion uint32
}

// SchedLock blocks until the calling task holds the scheduler lock. It is
// re-entrant: a task already holding the lock may call it again.
func (k *Kernel) SchedLock() {
	self := k.CurrentTask()
	k.sched.mu.Lock()
	for k.sched.owner != nil && k.sched.owner != self {
		k.sched.cond.Wait(&k.sched.mu)
	}
	k.sched.owner = self
	if k.sched.recursion == math.MaxUint32 {
		// The original's unsigned counter silently wraps here; Go makes the
		// same wraparound available but it would corrupt the 0->1
		// transition test below, so excessive nesting is instead treated
		// as the programming error it is (see SPEC_FULL.md section 4).
		vlog.Errorf("kernel: scheduler lock recursion count saturated for task %d; clamping", self.id)
	} else {
		k.sched.recursion++
	}
	if k.sched.recursion == 1 {
		applyHostSchedule(self.policy, elevatedPriority)
		k.metrics.schedLocks.Inc()
	}
	k.sched.mu.Unlock()
}

// SchedUnlock releases one level of scheduler lock recursion. On the final
// release it reapplies the holder's host thread priority from
// self.priority -- which TSetPri(0, ...) may have overwritten with a new
// target priority while the lock was held, per spec.md section 4.3's
// "deferred until unlock" rule -- and wakes any tasks waiting to acquire
// the lock.
func (k *Kernel) SchedUnlock() {
	self := k.CurrentTask()
	k.sched.mu.Lock()
	defer k.sched.mu.Unlock()
	if k.sched.owner != self {
		vlog.Errorf("kernel: SchedUnlock called by task %d, which does not hold the scheduler lock", self.id)
		return
	}
	k.sched.recursion--
	if k.sched.recursion == 0 {
		k.sched.owner = nil
		applyHostSchedule(self.policy, self.priority)
		k.sched.cond.Broadcast()
	}
}

// schedLockedBy reports whether t currently holds the scheduler lock.
func (k *Kernel) schedLockedBy(t *Task) bool {
	k.sched.mu.Lock()
	defer k.sched.mu.Unlock()
	return k.sched.owner == t
}

// forceReleaseSchedLock unconditionally clears the scheduler lock's
// ownership, used by TDelete's cleanup handler (spec.md section 4.1,
// "on task death a cleanup handler forcibly clears the ownership token")
// when a task holding the lock is deleted, self or otherwise.
func (k *Kernel) forceReleaseSchedLock(t *Task) {
	k.sched.mu.Lock()
	if k.sched.owner == t {
		k.sched.owner = nil
		k.sched.recursion = 0
		k.sched.cond.Broadcast()
	}
	k.sched.mu.Unlock()
}
