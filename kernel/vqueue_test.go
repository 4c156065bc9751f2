package kernel_test

import (
	"testing"
	"time"

	"github.com/xxha/p2goemu/kernel"
	"github.com/xxha/p2goemu/p2err"
)

// TestVQueuePriorityOrdering reproduces spec scenario 2: on a
// priority-pend variable-length queue, three waiters of priority 3, 6 and
// 9 (higher number is higher priority, per the task family's convention)
// receive a single posted message in priority order regardless of the
// order they called q_vreceive in, ties broken by arrival order. The
// highest-priority waiter arrives last, so arrival order alone would pick
// a different one.
func TestVQueuePriorityOrdering(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	qid, status := k.QVCreate(kernel.Name("VQ1"), 1, 16, kernel.QueuePriority)
	if !status.OK() {
		t.Fatalf("q_vcreate: %v", status)
	}

	order := make(chan uint32, 3)
	priorities := []uint32{3, 6, 9}
	for _, pri := range priorities {
		pri := pri
		id, st := k.TCreate(kernel.Name(""), pri, 0)
		if !st.OK() {
			t.Fatalf("t_create: %v", st)
		}
		ready := make(chan struct{})
		st = k.TStart(id, 0, func(a0, a1, a2, a3 uint32) {
			close(ready)
			if _, s := k.QVReceive(qid, 16, kernel.QueueWait, 0); !s.OK() {
				t.Errorf("q_vreceive: %v", s)
				return
			}
			order <- pri
		}, [4]uint32{})
		if !st.OK() {
			t.Fatalf("t_start: %v", st)
		}
		<-ready
		time.Sleep(10 * time.Millisecond)
	}

	if status := k.QVSend(qid, []byte("hi")); !status.OK() {
		t.Fatalf("q_vsend: %v", status)
	}

	select {
	case got := <-order:
		if got != 9 {
			t.Errorf("first waiter to receive had priority %d, want 9 (highest)", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the priority-selected waiter")
	}
}

// TestVQueueMessageSizeAndBufferSize reproduces the size-checking rules:
// q_vsend rejects an over-length payload outright, and q_vreceive rejects
// a buffer shorter than the queue's configured maximum, regardless of
// the actual pending message's length.
func TestVQueueMessageSizeAndBufferSize(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	qid, status := k.QVCreate(kernel.Name("VQ2"), 4, 8, kernel.QueueFIFO)
	if !status.OK() {
		t.Fatalf("q_vcreate: %v", status)
	}

	if status := k.QVSend(qid, make([]byte, 9)); status != p2err.MessageSize {
		t.Errorf("q_vsend over max length status = %v, want message-size", status)
	}
	if status := k.QVSend(qid, []byte("ok")); !status.OK() {
		t.Fatalf("q_vsend: %v", status)
	}
	if _, status := k.QVReceive(qid, 4, kernel.QueueNoWait, 0); status != p2err.BufferSize {
		t.Errorf("q_vreceive with undersized buffer status = %v, want buffer-size", status)
	}
	data, status := k.QVReceive(qid, 8, kernel.QueueNoWait, 0)
	if !status.OK() {
		t.Fatalf("q_vreceive: %v", status)
	}
	if string(data) != "ok" {
		t.Errorf("q_vreceive data = %q, want %q", data, "ok")
	}
}

// TestVQueueDeleteReportsMessagesWhenNoWaiters reproduces the
// informational-status precedence for q_vdelete: with messages still
// queued and no waiters, it reports messages-at-queue-delete.
func TestVQueueDeleteReportsMessagesWhenNoWaiters(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	qid, status := k.QVCreate(kernel.Name("VQ3"), 4, 8, kernel.QueueFIFO)
	if !status.OK() {
		t.Fatalf("q_vcreate: %v", status)
	}
	if status := k.QVSend(qid, []byte("x")); !status.OK() {
		t.Fatalf("q_vsend: %v", status)
	}
	if status := k.QVDelete(qid); status != p2err.MessagesAtQueueDelete {
		t.Errorf("q_vdelete status = %v, want messages-at-queue-delete", status)
	}
}

// TestVQueueIdent confirms q_vident resolves a name to the id q_vcreate
// returned, and that ids in this family start at 0.
func TestVQueueIdent(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	qid, status := k.QVCreate(kernel.Name("VQ4"), 1, 8, kernel.QueueFIFO)
	if !status.OK() {
		t.Fatalf("q_vcreate: %v", status)
	}
	if qid != 0 {
		t.Errorf("first vqueue id = %d, want 0", qid)
	}
	got, status := k.QVIdent(kernel.Name("VQ4"))
	if !status.OK() || got != qid {
		t.Errorf("q_vident = (%v, %v), want (%v, OK)", got, status, qid)
	}
}
