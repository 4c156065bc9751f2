package kernel

import "github.com/google/btree"

// waitQueue is the per-object ordered list of waiting tasks described by
// spec.md section 4.2. It is not itself goroutine-blocking: it is a purely
// logical queue of *Task back-references, threaded through Task.waitNext
// for FIFO order (mirroring the original's first_susp singly-linked list)
// or held in a btree keyed on (priority, sequence) for priority order. The
// actual blocking happens on each waiting Task's own wake nsync.CV; this
// queue only answers "who goes next" and "is it me yet", i.e.
// is_this_waiter_selected.
//
// Every waitQueue is protected by the mutex of the object that owns it; it
// has no lock of its own.
type waitQueue struct {
	order pendOrder

	// FIFO representation.
	head, tail *Task

	// Priority representation: a btree.BTree of *pqItem, ordered so that
	// Min() is exactly the highest-priority, earliest-enqueued waiter
	// (spec.md 4.2: "ties broken by list position (head wins)").
	tree *btree.BTree
	seq  uint64

	len int
}

func newWaitQueue(order pendOrder) *waitQueue {
	wq := &waitQueue{order: order}
	if order == pendPriority {
		wq.tree = btree.New(8)
	}
	return wq
}

// pqItem is the btree element for priority-pend wait queues.
type pqItem struct {
	priority uint32
	seq      uint64
	task     *Task
}

// Less orders pqItems so that the highest priority sorts first, and among
// equal priorities the earliest-enqueued (lowest seq, i.e. "head wins")
// sorts first. btree.Min() therefore always returns the correct selection.
func (a *pqItem) Less(than btree.Item) bool {
	b := than.(*pqItem)
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

// enqueue appends t to the wait queue. Requires the owning object's mutex
// held, and that t is not already enqueued anywhere.
func (wq *waitQueue) enqueue(t *Task, waitPriority uint32) {
	t.waitOn = wq
	t.waitNext = nil
	wq.len++
	switch wq.order {
	case pendFIFO:
		if wq.tail != nil {
			wq.tail.waitNext = t
		} else {
			wq.head = t
		}
		wq.tail = t
	case pendPriority:
		wq.seq++
		item := &pqItem{priority: waitPriority, seq: wq.seq, task: t}
		t.waitItem = item
		wq.tree.ReplaceOrInsert(item)
	}
}

// remove splices t out of the wait queue, wherever it sits. Requires the
// owning object's mutex held. No-op if t is not enqueued on wq.
func (wq *waitQueue) remove(t *Task) {
	if t.waitOn != wq {
		return
	}
	switch wq.order {
	case pendFIFO:
		var prev *Task
		for cur := wq.head; cur != nil; cur = cur.waitNext {
			if cur == t {
				if prev != nil {
					prev.waitNext = cur.waitNext
				} else {
					wq.head = cur.waitNext
				}
				if wq.tail == cur {
					wq.tail = prev
				}
				break
			}
			prev = cur
		}
	case pendPriority:
		if t.waitItem != nil {
			wq.tree.Delete(t.waitItem)
			t.waitItem = nil
		}
	}
	t.waitNext = nil
	t.waitOn = nil
	wq.len--
}

// front peeks at (without removing) the task that would be selected next.
func (wq *waitQueue) front() *Task {
	switch wq.order {
	case pendFIFO:
		return wq.head
	case pendPriority:
		item := wq.tree.Min()
		if item == nil {
			return nil
		}
		return item.(*pqItem).task
	}
	return nil
}

// empty reports whether any task is currently enqueued.
func (wq *waitQueue) empty() bool { return wq.len == 0 }

// size returns the number of currently enqueued waiters.
func (wq *waitQueue) size() int { return wq.len }

// selected implements is_this_waiter_selected(object, policy): evaluated
// from inside t's own predicate loop, it reports whether t is the waiter
// that should currently proceed.
func (wq *waitQueue) selected(t *Task) bool {
	return wq.front() == t
}

// all returns every currently enqueued task, in wake order, without
// removing them. Used by broadcast/delete to signal every waiter's own
// condition variable while each waiter removes itself once woken.
func (wq *waitQueue) all() []*Task {
	out := make([]*Task, 0, wq.len)
	switch wq.order {
	case pendFIFO:
		for cur := wq.head; cur != nil; cur = cur.waitNext {
			out = append(out, cur)
		}
	case pendPriority:
		wq.tree.Ascend(func(item btree.Item) bool {
			out = append(out, item.(*pqItem).task)
			return true
		})
	}
	return out
}

// drain removes and returns every currently enqueued task, in wake order.
// The broadcast/delete paths do not use it: they call all() and let each
// woken waiter remove itself.
func (wq *waitQueue) drain() []*Task {
	out := make([]*Task, 0, wq.len)
	for {
		t := wq.front()
		if t == nil {
			break
		}
		wq.remove(t)
		out = append(out, t)
	}
	return out
}
