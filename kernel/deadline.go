package kernel

import (
	"time"

	"github.com/xxha/p2goemu/nsync"
)

// deadline converts a tick count, as every blocking family's API takes it,
// into the absolute time nsync.CV.WaitWithDeadline expects. A zero tick
// count means "wait forever", every blocking family's infinite-wait
// convention (spec.md section 5, "honours a caller-supplied tick count
// (0 = infinite)"). TmWkafter does not use this: there zero ticks only
// yields.
func (k *Kernel) deadline(ticks uint32) time.Time {
	if ticks == 0 {
		return nsync.NoDeadline
	}
	return time.Now().Add(time.Duration(ticks) * k.cfg.Tick)
}
