package kernel

import (
	"github.com/xxha/p2goemu/nsync"
	"github.com/xxha/p2goemu/p2err"
	"github.com/xxha/p2goemu/vlog"
)

// EvSend ORs events into tid's pending set and wakes it so its receive
// predicate re-evaluates. Unlike the IPC object families, an event group
// is not a standalone table entry: it lives directly on the Task
// descriptor (spec.md section 3, "per-task, not a standalone object"),
// so this is a targeted send rather than a lookup-then-send.
func (k *Kernel) EvSend(tid TaskID, events uint32) p2err.Status {
	t, status := k.resolveTarget(tid)
	if !status.OK() {
		return status
	}
	t.eventMu.Lock()
	t.eventsPending |= events
	t.eventMu.Unlock()
	t.eventCV.Broadcast()
	vlog.VI(2).Infof("kernel: ev_send task %d events=%#x", t.id, events)
	return p2err.None
}

// EvReceive waits for a rendezvous against the calling task's own event
// group, per the AND/OR and WAIT/NOWAIT rules of spec.md section 4.4.
// events is the caller's entire wait mask; a zero mask is legal and
// matches nothing (the original's events_match_mask never succeeds
// against a zero mask either, AND or OR).
func (k *Kernel) EvReceive(events uint32, opts EventOpt, ticks uint32) (captured uint32, status p2err.Status) {
	self := k.CurrentTask()
	defer traceWait("ev-receive")()

	self.eventMu.Lock()
	defer self.eventMu.Unlock()

	dl := k.deadline(ticks)
	for {
		// A bit already captured in an earlier iteration of this same call
		// stays pending if it arrives again -- events_match_mask's
		// events_pending &= (~event_mask | still_pending) rule -- so a
		// re-raise while we're still waiting on other bits isn't lost once
		// we finally match and reset eventsCaptured to 0.
		priorCaptured := self.eventsCaptured
		arrived := self.eventsPending & events
		self.eventsCaptured |= arrived
		self.eventsPending &^= arrived &^ priorCaptured

		var matched bool
		if opts&EventAny != 0 {
			matched = events != 0 && self.eventsCaptured&events != 0
		} else {
			matched = self.eventsCaptured&events == events
		}
		if matched {
			result := self.eventsCaptured & events
			self.eventsCaptured = 0
			return result, p2err.None
		}
		if opts&EventNoWait != 0 {
			return 0, p2err.NoEvents
		}
		switch self.eventCV.WaitWithDeadline(&self.eventMu, dl, self.killChan()) {
		case nsync.Expired:
			k.metrics.timeouts.Inc()
			return 0, p2err.Timeout
		case nsync.Cancelled:
			return 0, p2err.ObjectDeleted
		}
	}
}
