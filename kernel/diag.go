package kernel

import (
	"github.com/xxha/p2goemu/timing"
	"github.com/xxha/p2goemu/vlog"
)

// traceWait starts a named timing.Timer interval for a blocking kernel
// call, and returns a func to close it out and log it at V(2). It is a
// direct replacement for the #ifdef DIAG_PRINTFS blocks the original
// sprinkled around every pend/wake, reusing the "named interval" timer
// (timing.Timer) instead of ad hoc printf timestamps.
//
// Callers use it as: defer traceWait("q-receive")()
func traceWait(name string) func() {
	if !vlog.V(2) {
		return func() {}
	}
	t := timing.NewCompactTimer(name)
	return func() {
		t.Finish()
		vlog.VI(2).Infof("%s", t.String())
	}
}
