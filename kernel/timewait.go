package kernel

import (
	"runtime"
	"time"

	"github.com/xxha/p2goemu/p2err"
)

// TmWkafter delays the caller for ticks (one tick = k.Tick(), normally
// 10ms). A zero tick count only yields the processor. The wait is a
// cancellation point: deleting the sleeping task wakes it immediately
// with object-deleted instead of letting it sleep out the full delay.
func (k *Kernel) TmWkafter(ticks uint32) p2err.Status {
	self := k.CurrentTask()
	self.checkpoint()

	if ticks == 0 {
		runtime.Gosched()
		return p2err.None
	}

	deadline := time.Now().Add(time.Duration(ticks) * k.cfg.Tick)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return p2err.None
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return p2err.None
		case <-self.killChan():
			timer.Stop()
			return p2err.ObjectDeleted
		}
	}
}
