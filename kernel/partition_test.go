package kernel_test

import (
	"testing"

	"github.com/xxha/p2goemu/kernel"
	"github.com/xxha/p2goemu/p2err"
)

// TestPartitionGetbufRetbuf exercises the basic allocate/free cycle and
// the free list's O(1) allocate / tail-append free behaviour.
func TestPartitionGetbufRetbuf(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	pid, status := k.PtCreate(kernel.Name("PART"), 16, 2, kernel.PartitionNoDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create: %v", status)
	}

	a, status := k.PtGetbuf(pid)
	if !status.OK() {
		t.Fatalf("pt_getbuf #1: %v", status)
	}
	b, status := k.PtGetbuf(pid)
	if !status.OK() {
		t.Fatalf("pt_getbuf #2: %v", status)
	}
	if _, status := k.PtGetbuf(pid); status != p2err.NoBuffer {
		t.Errorf("pt_getbuf on exhausted partition = %v, want no-buffer", status)
	}

	if status := k.PtRetbuf(pid, a); !status.OK() {
		t.Fatalf("pt_retbuf a: %v", status)
	}
	c, status := k.PtGetbuf(pid)
	if !status.OK() {
		t.Fatalf("pt_getbuf #3: %v", status)
	}
	if &c[0] != &a[0] {
		t.Errorf("pt_getbuf did not reuse the freed block")
	}

	if status := k.PtRetbuf(pid, b); !status.OK() {
		t.Fatalf("pt_retbuf b: %v", status)
	}
	if status := k.PtRetbuf(pid, c); !status.OK() {
		t.Fatalf("pt_retbuf c: %v", status)
	}
}

// TestPartitionDoubleFree reproduces spec scenario 6: returning the same
// block twice is rejected with buffer-already-free.
func TestPartitionDoubleFree(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	pid, status := k.PtCreate(kernel.Name("PART"), 16, 4, kernel.PartitionNoDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create: %v", status)
	}
	a, status := k.PtGetbuf(pid)
	if !status.OK() {
		t.Fatalf("pt_getbuf: %v", status)
	}
	if status := k.PtRetbuf(pid, a); !status.OK() {
		t.Fatalf("pt_retbuf #1: %v", status)
	}
	if status := k.PtRetbuf(pid, a); status != p2err.BufferAlreadyFree {
		t.Errorf("pt_retbuf #2 status = %v, want buffer-already-free", status)
	}
}

// TestPartitionInvalidBufferAddress reproduces spec scenario 6: an
// address that is not a block of this partition is rejected.
func TestPartitionInvalidBufferAddress(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	pid1, status := k.PtCreate(kernel.Name("PAR1"), 16, 2, kernel.PartitionNoDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create 1: %v", status)
	}
	pid2, status := k.PtCreate(kernel.Name("PAR2"), 16, 2, kernel.PartitionNoDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create 2: %v", status)
	}

	foreign, status := k.PtGetbuf(pid2)
	if !status.OK() {
		t.Fatalf("pt_getbuf: %v", status)
	}
	if status := k.PtRetbuf(pid1, foreign); status != p2err.InvalidBufferAddress {
		t.Errorf("pt_retbuf with a block from a different partition = %v, want invalid-buffer-address", status)
	}

	arbitrary := make(kernel.BlockAddr, 16)
	if status := k.PtRetbuf(pid1, arbitrary); status != p2err.InvalidBufferAddress {
		t.Errorf("pt_retbuf with an unrelated slice = %v, want invalid-buffer-address", status)
	}
}

// TestPartitionBadBlockSize reproduces spec scenario 6: a block size under
// four bytes or an odd block size is rejected at creation time.
func TestPartitionBadBlockSize(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	if _, status := k.PtCreate(kernel.Name("BAD1"), 2, 4, kernel.PartitionNoDeleteInUse); status != p2err.PartitionBufferSize {
		t.Errorf("pt_create blocksize=2 status = %v, want partition-buffer-size", status)
	}
	if _, status := k.PtCreate(kernel.Name("BAD2"), 17, 4, kernel.PartitionNoDeleteInUse); status != p2err.PartitionBufferSize {
		t.Errorf("pt_create blocksize=17 status = %v, want partition-buffer-size", status)
	}
}

// TestPartitionDeleteInUse reproduces the buffer-in-use / delete-in-use
// rule: deleting a partition with blocks checked out fails unless the
// partition was created with the delete-in-use option.
func TestPartitionDeleteInUse(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	pid, status := k.PtCreate(kernel.Name("PART"), 16, 2, kernel.PartitionNoDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create: %v", status)
	}
	if _, status := k.PtGetbuf(pid); !status.OK() {
		t.Fatalf("pt_getbuf: %v", status)
	}
	if status := k.PtDelete(pid); status != p2err.BufferInUse {
		t.Errorf("pt_delete with block in use = %v, want buffer-in-use", status)
	}

	pid2, status := k.PtCreate(kernel.Name("PART2"), 16, 2, kernel.PartitionDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create 2: %v", status)
	}
	if _, status := k.PtGetbuf(pid2); !status.OK() {
		t.Fatalf("pt_getbuf 2: %v", status)
	}
	if status := k.PtDelete(pid2); !status.OK() {
		t.Errorf("pt_delete with delete-in-use set = %v, want OK", status)
	}
}

// TestPartitionIdent confirms pt_ident resolves a name to the id
// pt_create returned, and fails for an unknown name.
func TestPartitionIdent(t *testing.T) {
	k := newTestKernel()
	k.Boot(kernel.Name("MAIN"))

	pid, status := k.PtCreate(kernel.Name("PART"), 16, 2, kernel.PartitionNoDeleteInUse)
	if !status.OK() {
		t.Fatalf("pt_create: %v", status)
	}
	got, status := k.PtIdent(kernel.Name("PART"))
	if !status.OK() || got != pid {
		t.Errorf("pt_ident = (%v, %v), want (%v, OK)", got, status, pid)
	}
	if _, status := k.PtIdent(kernel.Name("NONE")); status != p2err.ObjectNotFound {
		t.Errorf("pt_ident unknown name status = %v, want object-not-found", status)
	}
}
