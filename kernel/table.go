package kernel

import (
	"github.com/xxha/p2goemu/nsync"
)

// table is the object table shared by the queue, vqueue, semaphore and
// partition families: an id -> object map plus the id allocator, guarded by
// a single Mu held only for the list edit itself (spec.md section 5,
// "object tables are protected by per-table mutexes held only for list
// edits").
//
// Go generics replace the original's five hand-duplicated table
// implementations (one per object family in queue.c/sema4.c/memblk.c) with
// one parameterized on the object type.
type table[T any] struct {
	mu      nsync.Mu
	startID uint32
	limit   uint32
	next    uint32
	objs    map[uint32]*T
}

func newTable[T any](startID, limit uint32) *table[T] {
	return &table[T]{
		startID: startID,
		limit:   limit,
		next:    startID,
		objs:    make(map[uint32]*T),
	}
}

// create allocates a fresh id and calls build to construct the object that
// will live at that id. It returns false if the family's configured
// capacity has been reached; callers report that as ObjectTableFull.
func (t *table[T]) create(build func(id uint32) *T) (*T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint32(len(t.objs)) >= t.limit {
		return nil, false
	}
	id := t.next
	for {
		if _, taken := t.objs[id]; !taken {
			break
		}
		id++
	}
	obj := build(id)
	t.objs[id] = obj
	t.next = id + 1
	return obj, true
}

func (t *table[T]) lookup(id uint32) (*T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.objs[id]
	return obj, ok
}

func (t *table[T]) remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.objs, id)
}

func (t *table[T]) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objs)
}

// find performs a linear scan under the table lock, mirroring the original
// *_ident() functions which walk their singly-linked object list comparing
// names.
func (t *table[T]) find(match func(*T) bool) (*T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, obj := range t.objs {
		if match(obj) {
			return obj, true
		}
	}
	return nil, false
}
