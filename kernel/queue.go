package kernel

import (
	"github.com/xxha/p2goemu/nsync"
	"github.com/xxha/p2goemu/p2err"
	"github.com/xxha/p2goemu/vlog"
)

// QueueID identifies a fixed-length message queue; the family's ids start
// at 1.
type QueueID uint32

type queueSendMode uint8

const (
	queueNormal queueSendMode = iota
	queueBroadcast
	queueDeleted
)

// fixedQueue is a circular buffer of 4-word messages, extensible by
// appending extents (spec.md section 4.5). The original chains
// fixed-size extent arrays through raw next-pointers and walks head/tail
// indices into whichever extent currently contains them; that pointer
// graph is exactly what the design notes ask a systems-language port to
// replace with an indexable pool, so here the whole chain collapses into
// one growable slice, with extent boundaries tracked only as a capacity
// count (extentSize*numExtents) rather than as separate backing arrays.
type fixedQueue struct {
	id   uint32
	name [4]byte

	order      pendOrder
	extensible bool
	extentSize uint32
	numExtents uint32

	mu     nsync.Mu
	doneCV nsync.CV // broadcast/delete drain-completion signal

	messages [][4]uint32
	special  [4]uint32 // current broadcast payload or delete sentinel
	mode     queueSendMode
	wq       *waitQueue
	awakened int

	k *Kernel
}

func (q *fixedQueue) normalCapacity() int { return int(q.extentSize * q.numExtents) }

// QCreate allocates a fixed-length message queue. capacity is the number
// of 4-word slots in the first extent; zero is legal (spec.md's
// zero-capacity queue, testable scenario 3).
func (k *Kernel) QCreate(name [4]byte, capacity uint32, opts QueueOpt) (QueueID, p2err.Status) {
	order := pendFIFO
	if opts&QueuePriority != 0 {
		order = pendPriority
	}
	obj, ok := k.queues.create(func(id uint32) *fixedQueue {
		return &fixedQueue{
			id:         id,
			name:       name,
			order:      order,
			extensible: opts&QueueLimit == 0,
			extentSize: capacity,
			numExtents: 1,
			wq:         newWaitQueue(order),
			k:          k,
		}
	})
	if !ok {
		return 0, p2err.ObjectTableFull
	}
	k.metrics.queues.Inc()
	vlog.VI(2).Infof("kernel: q_create %q cap=%d opts=%#x -> queue %d", name, capacity, opts, obj.id)
	return QueueID(obj.id), p2err.None
}

// QSend appends msg at the tail, growing by one extent if the queue is
// extensible and full.
func (k *Kernel) QSend(qid QueueID, msg [4]uint32) p2err.Status {
	q, ok := k.queues.lookup(uint32(qid))
	if !ok {
		return p2err.ObjectDeleted
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.mode == queueDeleted {
		return p2err.ObjectDeleted
	}
	roomFor := q.normalCapacity()
	if len(q.messages) >= roomFor {
		switch {
		case roomFor == 0:
			// Zero-capacity queue: a send is legal only as a direct
			// handoff to an already-pending receiver.
			if q.wq.empty() {
				return p2err.QueueFull
			}
		case q.extensible:
			q.numExtents++
			vlog.VI(2).Infof("kernel: queue %d grew to %d extents", q.id, q.numExtents)
		default:
			return p2err.QueueFull
		}
	}
	q.messages = append(q.messages, msg)
	if front := q.wq.front(); front != nil {
		front.wake.Signal()
	}
	return p2err.None
}

// QUrgent inserts msg at the head, using the reserved urgent slot if the
// queue's normal capacity is otherwise exhausted.
func (k *Kernel) QUrgent(qid QueueID, msg [4]uint32) p2err.Status {
	q, ok := k.queues.lookup(uint32(qid))
	if !ok {
		return p2err.ObjectDeleted
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.mode == queueDeleted {
		return p2err.ObjectDeleted
	}
	if len(q.messages) >= q.normalCapacity()+1 {
		if q.extensible {
			q.numExtents++
		} else {
			return p2err.QueueFull
		}
	}
	q.messages = append([][4]uint32{msg}, q.messages...)
	if front := q.wq.front(); front != nil {
		front.wake.Signal()
	}
	return p2err.None
}

// QBroadcast delivers msg to every task currently pending on the queue,
// blocking until all of them have received it, then returns the count
// woken (spec.md invariant 6).
func (k *Kernel) QBroadcast(qid QueueID, msg [4]uint32) (awakened uint32, status p2err.Status) {
	q, ok := k.queues.lookup(uint32(qid))
	if !ok {
		return 0, p2err.ObjectDeleted
	}
	q.mu.Lock()
	if q.mode != queueNormal {
		q.mu.Unlock()
		return 0, p2err.QueueKilled
	}
	waiters := q.wq.all()
	if len(waiters) == 0 {
		q.mu.Unlock()
		return 0, p2err.None
	}
	q.special = msg
	q.mode = queueBroadcast
	q.awakened = 0
	for _, w := range waiters {
		w.wake.Signal()
	}
	for q.mode == queueBroadcast {
		q.doneCV.Wait(&q.mu)
	}
	n := q.awakened
	q.mu.Unlock()
	return uint32(n), p2err.None
}

// QReceive waits for and returns the next message. Its predicate loop
// implements is_this_waiter_selected directly against the ordered
// waitQueue rather than the original's shared-condvar-plus-tick-sleep
// approximation: the producer wakes exactly the selected waiter's own
// condition variable (see QSend/QUrgent/QBroadcast above), so there is no
// busy-wait granularity to account for.
func (k *Kernel) QReceive(qid QueueID, opts QueueOpt, ticks uint32) (msg [4]uint32, status p2err.Status) {
	q, ok := k.queues.lookup(uint32(qid))
	if !ok {
		return msg, p2err.ObjectDeleted
	}
	self := k.CurrentTask()
	self.checkpoint()
	defer traceWait("q-receive")()

	q.mu.Lock()
	defer q.mu.Unlock()

	// A task arriving while a broadcast is in flight must not join the pend
	// list until it drains: joining now would let it be selected for the
	// broadcast payload and counted in awakened, even though it wasn't
	// pending at the moment q_broadcast was called.
	for q.mode == queueBroadcast {
		q.doneCV.Wait(&q.mu)
	}

	if q.mode == queueDeleted {
		return q.special, p2err.QueueKilled
	}

	q.wq.enqueue(self, self.priority)
	dl := k.deadline(ticks)
	for {
		switch {
		case q.mode == queueDeleted:
			q.wq.remove(self)
			if q.wq.empty() {
				q.doneCV.Broadcast()
			}
			return q.special, p2err.QueueKilled
		case q.mode == queueBroadcast:
			m := q.special
			q.wq.remove(self)
			q.awakened++
			if q.wq.empty() {
				q.mode = queueNormal
				q.doneCV.Broadcast()
			}
			return m, p2err.None
		case len(q.messages) > 0 && q.wq.selected(self):
			m := q.messages[0]
			q.messages = q.messages[1:]
			q.wq.remove(self)
			// More than one message arrived before we ran: the signal
			// that woke us only targeted the old front, so the new front
			// needs its own wakeup or it stays stranded.
			if len(q.messages) > 0 {
				if next := q.wq.front(); next != nil {
					next.wake.Signal()
				}
			}
			return m, p2err.None
		}
		if opts&QueueNoWait != 0 {
			q.wq.remove(self)
			return msg, p2err.NoMessage
		}
		switch self.wake.WaitWithDeadline(&q.mu, dl, self.killChan()) {
		case nsync.Expired:
			q.wq.remove(self)
			k.metrics.timeouts.Inc()
			return msg, p2err.Timeout
		case nsync.Cancelled:
			q.wq.remove(self)
			return msg, p2err.ObjectDeleted
		}
	}
}

// QDelete wakes every pending receiver with the queue-killed status, waits
// for them all to observe it, then frees the queue. The returned status is
// informational when tasks or messages remained (spec.md section 7).
func (k *Kernel) QDelete(qid QueueID) p2err.Status {
	q, ok := k.queues.lookup(uint32(qid))
	if !ok {
		return p2err.ObjectDeleted
	}
	q.mu.Lock()
	hadTasks := !q.wq.empty()
	hadMessages := len(q.messages) > 0
	q.special = [4]uint32{}
	q.mode = queueDeleted
	for _, w := range q.wq.all() {
		w.wake.Signal()
	}
	for !q.wq.empty() {
		q.doneCV.Wait(&q.mu)
	}
	q.mu.Unlock()

	k.queues.remove(uint32(qid))
	k.metrics.queues.Dec()
	vlog.VI(2).Infof("kernel: q_delete queue %d tasks=%v messages=%v", qid, hadTasks, hadMessages)
	switch {
	case hadTasks:
		return p2err.TasksAtQueueDelete
	case hadMessages:
		return p2err.MessagesAtQueueDelete
	default:
		return p2err.None
	}
}

// QIdent looks up a fixed-length queue by name.
func (k *Kernel) QIdent(name [4]byte) (QueueID, p2err.Status) {
	q, ok := k.queues.find(func(q *fixedQueue) bool { return q.name == name })
	if !ok {
		return 0, p2err.ObjectNotFound
	}
	return QueueID(q.id), p2err.None
}
