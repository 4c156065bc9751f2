package kernel

import (
	"unsafe"

	"github.com/xxha/p2goemu/nsync"
	"github.com/xxha/p2goemu/p2err"
	"github.com/xxha/p2goemu/vlog"
)

// PartitionID identifies a fixed-block partition.
type PartitionID uint32

// BlockAddr is a handle to one block of a partition's backing region,
// returned by PtGetbuf and consumed by PtRetbuf. It is a slice view into
// the partition's own backing array rather than a caller-supplied
// pointer: the original takes the backing region itself from the caller
// and walks raw pointers into it, but Go slices already carry their own
// bounds, so PtRetbuf's "does this address lie inside the region"
// validation below only needs to compare the slice's own data pointer,
// not chase anything.
type BlockAddr []byte

// partition is the fixed-block allocator of spec.md section 4.8. The
// original threads its free list through a next-pointer written into the
// first few bytes of each free block; the design notes call that out
// explicitly as a pattern to replace with an arena plus integer
// indices, so the free list here is a plain slice of block indices
// instead, scanned linearly by PtRetbuf to detect a double free exactly
// as spec.md section 4.8 describes ("scan the free list to reject
// double-free").
type partition struct {
	id   uint32
	name [4]byte

	blockSize   uint32
	numBlocks   uint32
	region      []byte
	deleteInUse bool

	mu       nsync.Mu
	freeList []uint32
	used     uint32

	k *Kernel
}

// PtCreate allocates a partition of numBlocks blocks of blockSize bytes
// each. blockSize must be at least 4 and even.
func (k *Kernel) PtCreate(name [4]byte, blockSize, numBlocks uint32, opts PartitionOpt) (PartitionID, p2err.Status) {
	if blockSize < 4 || blockSize%2 != 0 {
		return 0, p2err.PartitionBufferSize
	}
	obj, ok := k.partitions.create(func(id uint32) *partition {
		freeList := make([]uint32, numBlocks)
		for i := range freeList {
			freeList[i] = uint32(i)
		}
		return &partition{
			id:          id,
			name:        name,
			blockSize:   blockSize,
			numBlocks:   numBlocks,
			region:      make([]byte, uint64(blockSize)*uint64(numBlocks)),
			deleteInUse: opts&PartitionDeleteInUse != 0,
			freeList:    freeList,
			k:           k,
		}
	})
	if !ok {
		return 0, p2err.ObjectTableFull
	}
	k.metrics.partitions.Inc()
	vlog.VI(2).Infof("kernel: pt_create %q blocksize=%d blocks=%d -> partition %d", name, blockSize, numBlocks, obj.id)
	return PartitionID(obj.id), p2err.None
}

// PtGetbuf pops a block off the free list in O(1).
func (k *Kernel) PtGetbuf(id PartitionID) (BlockAddr, p2err.Status) {
	p, ok := k.partitions.lookup(uint32(id))
	if !ok {
		return nil, p2err.ObjectDeleted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.freeList) == 0 {
		return nil, p2err.NoBuffer
	}
	idx := p.freeList[0]
	p.freeList = p.freeList[1:]
	p.used++
	start := uint64(idx) * uint64(p.blockSize)
	end := start + uint64(p.blockSize)
	return BlockAddr(p.region[start:end:end]), p2err.None
}

// PtRetbuf returns a block to the free list, splicing it at the tail so
// reused blocks rotate (spec.md section 4.8). addr must be a value
// previously returned by PtGetbuf on this same partition and not already
// returned.
func (k *Kernel) PtRetbuf(id PartitionID, addr BlockAddr) p2err.Status {
	p, ok := k.partitions.lookup(uint32(id))
	if !ok {
		return p2err.ObjectDeleted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.blockIndex(addr)
	if !ok {
		return p2err.InvalidBufferAddress
	}
	for _, f := range p.freeList {
		if f == idx {
			return p2err.BufferAlreadyFree
		}
	}
	p.freeList = append(p.freeList, idx)
	p.used--
	return p2err.None
}

// blockIndex validates that addr is exactly one block-sized slice whose
// backing array is this partition's region, block-aligned, and returns
// its index.
func (p *partition) blockIndex(addr BlockAddr) (uint32, bool) {
	if len(p.region) == 0 || uint32(len(addr)) != p.blockSize {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.region[0]))
	ptr := uintptr(unsafe.Pointer(&addr[0]))
	if ptr < base || ptr >= base+uintptr(len(p.region)) {
		return 0, false
	}
	off := ptr - base
	if off%uintptr(p.blockSize) != 0 {
		return 0, false
	}
	return uint32(off / uintptr(p.blockSize)), true
}

// PtDelete frees the partition. If blocks are still checked out, it
// refuses with buffer-in-use unless the partition was created with the
// delete-in-use flag.
func (k *Kernel) PtDelete(id PartitionID) p2err.Status {
	p, ok := k.partitions.lookup(uint32(id))
	if !ok {
		return p2err.ObjectDeleted
	}
	p.mu.Lock()
	inUse := p.used > 0
	allow := p.deleteInUse
	p.mu.Unlock()
	if inUse && !allow {
		return p2err.BufferInUse
	}
	k.partitions.remove(uint32(id))
	k.metrics.partitions.Dec()
	vlog.VI(2).Infof("kernel: pt_delete partition %d", id)
	return p2err.None
}

// PtIdent looks up a partition by name.
func (k *Kernel) PtIdent(name [4]byte) (PartitionID, p2err.Status) {
	p, ok := k.partitions.find(func(p *partition) bool { return p.name == name })
	if !ok {
		return 0, p2err.ObjectNotFound
	}
	return PartitionID(p.id), p2err.None
}
