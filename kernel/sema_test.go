package kernel_test

import (
	"testing"
	"time"

	"github.com/xxha/p2goemu/kernel"
	"github.com/xxha/p2goemu/p2err"
)

// TestSemaphoreFIFOOrdering checks that tokens posted one at a time are
// handed to waiters in strict enqueue order on a FIFO semaphore.
func TestSemaphoreFIFOOrdering(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	sid, status := k.SmCreate(kernel.Name("SEM1"), 0, kernel.SemaFIFO)
	if !status.OK() {
		t.Fatalf("sm_create: %v", status)
	}

	const n = 3
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		id, st := k.TCreate(kernel.Name(""), uint32(10+5*i), 0)
		if !st.OK() {
			t.Fatalf("t_create: %v", st)
		}
		ready := make(chan struct{})
		st = k.TStart(id, 0, func(a0, a1, a2, a3 uint32) {
			close(ready)
			if st := k.SmP(sid, kernel.SemaWait, 0); !st.OK() {
				t.Errorf("sm_p: %v", st)
				return
			}
			order <- i
		}, [4]uint32{})
		if !st.OK() {
			t.Fatalf("t_start: %v", st)
		}
		<-ready
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < n; i++ {
		if st := k.SmV(sid); !st.OK() {
			t.Fatalf("sm_v #%d: %v", i, st)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-order:
			if got != i {
				t.Errorf("waiter order %d: got %d, want %d", i, got, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for waiter %d", i)
		}
	}
}

// TestSemaphoreNoWait reproduces the NOWAIT rule: sm_p fails immediately
// with no-semaphore rather than blocking when the count is zero.
func TestSemaphoreNoWait(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	sid, status := k.SmCreate(kernel.Name("SEM2"), 0, kernel.SemaFIFO)
	if !status.OK() {
		t.Fatalf("sm_create: %v", status)
	}

	if st := k.SmP(sid, kernel.SemaNoWait, 0); st != p2err.NoSemaphore {
		t.Errorf("sm_p status = %v, want no-semaphore", st)
	}

	if st := k.SmV(sid); !st.OK() {
		t.Fatalf("sm_v: %v", st)
	}
	if st := k.SmP(sid, kernel.SemaNoWait, 0); !st.OK() {
		t.Fatalf("sm_p after sm_v: %v", st)
	}
}

// TestSemaphoreDeleteWithWaiters reproduces the delete-drain handshake:
// every pending waiter wakes with semaphore-killed and the delete call
// reports tasks-at-semaphore-delete.
func TestSemaphoreDeleteWithWaiters(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	sid, status := k.SmCreate(kernel.Name("SEM3"), 0, kernel.SemaFIFO)
	if !status.OK() {
		t.Fatalf("sm_create: %v", status)
	}

	const n = 3
	done := make(chan p2err.Status, n)
	for i := 0; i < n; i++ {
		id, st := k.TCreate(kernel.Name(""), uint32(10+5*i), 0)
		if !st.OK() {
			t.Fatalf("t_create: %v", st)
		}
		ready := make(chan struct{})
		st = k.TStart(id, 0, func(a0, a1, a2, a3 uint32) {
			close(ready)
			done <- k.SmP(sid, kernel.SemaWait, 0)
		}, [4]uint32{})
		if !st.OK() {
			t.Fatalf("t_start: %v", st)
		}
		<-ready
	}
	time.Sleep(20 * time.Millisecond)

	delStatus := k.SmDelete(sid)
	if delStatus != p2err.TasksAtSemaphoreDelete {
		t.Errorf("sm_delete status = %v, want tasks-at-semaphore-delete", delStatus)
	}
	for i := 0; i < n; i++ {
		select {
		case s := <-done:
			if s.OK() {
				t.Errorf("waiter %d: expected semaphore-killed, got OK", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d: did not wake up on delete", i)
		}
	}
}

// TestSemaphoreIdent confirms sm_ident resolves a name to the id sm_create
// returned, and fails for an unknown name.
func TestSemaphoreIdent(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	sid, status := k.SmCreate(kernel.Name("SEM4"), 1, kernel.SemaFIFO)
	if !status.OK() {
		t.Fatalf("sm_create: %v", status)
	}
	got, status := k.SmIdent(kernel.Name("SEM4"))
	if !status.OK() || got != sid {
		t.Errorf("sm_ident = (%v, %v), want (%v, OK)", got, status, sid)
	}
	if _, status := k.SmIdent(kernel.Name("NONE")); status != p2err.ObjectNotFound {
		t.Errorf("sm_ident unknown name status = %v, want object-not-found", status)
	}
}
