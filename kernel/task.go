package kernel

import (
	"runtime"
	"sync/atomic"

	"github.com/xxha/p2goemu/nsync"
	"github.com/xxha/p2goemu/p2err"
	"github.com/xxha/p2goemu/vlog"
)

// TaskID is a 1-based task identifier, unique for the lifetime of the
// kernel instance (ids are not reused once a task is deleted).
type TaskID uint32

// TaskState is the task's suspend/run state (spec.md section 4.10).
type TaskState int32

const (
	StateNotStarted TaskState = iota
	StateReady
	StateSelfSuspended
	StateWaiting
	StateDeleted
)

// TaskEntry is a task's top-level function, taking the four word-sized
// argument slots t_start passes through from the caller.
type TaskEntry func(a0, a1, a2, a3 uint32)

// Task is the descriptor of spec.md section 3: a task id, name, host
// thread, scheduling policy/priority, event state, an eight-word register
// file, and the wait linkage used to splice the task in and out of
// whichever object's waitQueue it is currently parked on.
//
// The registry owns the descriptor; the descriptor exclusively owns its
// goroutine and event condition variable; wait-queue membership fields
// (waitNext/waitItem/waitOn) are back-references only, per spec.md's
// ownership rule -- deleting the owning queue/semaphore is what frees
// them, not the task.
type Task struct {
	id   TaskID
	name [4]byte
	k    *Kernel

	policy Policy
	mode   TaskMode

	// priority is the task's nominal priority. The scheduler lock never
	// writes it: acquiring the lock only raises the task's *host thread*
	// to the policy maximum and releasing it reapplies this field, so
	// TSetPri(self, ...) issued while scheduler-locked naturally takes
	// effect only at the matching SchedUnlock, without any separate
	// deferred/saved copy (spec.md section 4.3).
	priority uint32

	notepad [8]uint32

	eventMu        nsync.Mu
	eventCV        nsync.CV
	eventMask      uint32
	eventsPending  uint32
	eventsCaptured uint32

	state atomic.Int32

	// Wait-queue back-references; guarded by the mutex of whichever
	// object's waitQueue currently owns this task (nil/zero otherwise).
	waitNext *Task
	waitItem *pqItem
	waitOn   *waitQueue

	// wake is the condition variable a task blocks on while parked in any
	// object's waitQueue (fixed/variable queue receive, semaphore wait).
	// The original wakes every pender with one shared condvar broadcast
	// and has each non-selected waiter re-sleep for a tick so the right
	// one eventually notices is_this_waiter_selected; that granularity is
	// exactly what the design notes invite dropping in a redesign, so
	// instead the producer signals the selected waiter's own condvar
	// directly (see waitQueue.front/all call sites in queue.go,
	// vqueue.go and sema.go).
	wake nsync.CV

	// Global task list link (see taskList); inserted once at TCreate,
	// never moved, so it is safe to read without the list's mutex.
	listNext atomic.Pointer[Task]

	killCh    chan struct{}
	killOnce  atomic.Bool
	suspendMu nsync.Mu
	suspendCV nsync.CV
	suspended atomic.Bool

	goroutineID atomic.Uint64
	started     atomic.Bool
	doneCh      chan struct{}
}

// ID returns the task's identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the task's 4-byte name.
func (t *Task) Name() [4]byte { return t.name }

// State returns the task's current suspend/run state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// killChan is used as the cancelChan argument to nsync.CV.WaitWithDeadline
// by every blocking kernel primitive the task calls, so that TDelete of a
// *blocked* task unblocks it immediately (spec.md section 5, "a task
// cancellation during a wait runs a cleanup handler that unlocks the
// object mutex ... ").
func (t *Task) killChan() <-chan struct{} { return t.killCh }

func (t *Task) kill() {
	if t.killOnce.CompareAndSwap(false, true) {
		close(t.killCh)
	}
}

// checkpoint is the cooperative suspend/cancellation point every blocking
// kernel primitive calls before it begins waiting. Go provides no
// supported mechanism for asynchronously suspending an arbitrary running
// goroutine the way the original stops a POSIX thread with a signal, so
// TSuspend instead takes effect the next time the suspended task enters a
// kernel call -- the same place TDelete's forced unwind is observed.
func (t *Task) checkpoint() {
	for t.suspended.Load() {
		t.suspendMu.Lock()
		for t.suspended.Load() {
			t.suspendCV.Wait(&t.suspendMu)
		}
		t.suspendMu.Unlock()
	}
}

// taskList is the global task list of spec.md section 3: a singly-linked
// list ordered by id (ids are assigned in increasing order, so append-only
// insertion preserves the order), read without locking for name lookup and
// under its mutex for insertion and deletion.
type taskList struct {
	mu   nsync.Mu
	head atomic.Pointer[Task]
	tail *Task
}

func (l *taskList) insert(t *Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tail != nil {
		l.tail.listNext.Store(t)
	} else {
		l.head.Store(t)
	}
	l.tail = t
}

func (l *taskList) remove(t *Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev *Task
	for cur := l.head.Load(); cur != nil; cur = cur.listNext.Load() {
		if cur == t {
			next := cur.listNext.Load()
			if prev != nil {
				prev.listNext.Store(next)
			} else {
				l.head.Store(next)
			}
			if l.tail == cur {
				l.tail = prev
			}
			return
		}
		prev = cur
	}
}

// find performs a lock-free traversal, matching spec.md's "the task list is
// read without locking during name lookup (immutable-tail traversal)".
func (l *taskList) find(match func(*Task) bool) *Task {
	for cur := l.head.Load(); cur != nil; cur = cur.listNext.Load() {
		if match(cur) {
			return cur
		}
	}
	return nil
}

// CurrentTask returns the descriptor of the calling goroutine's task. It
// panics if called from a goroutine the kernel did not itself spawn via
// TStart/Boot, which is always a programming error in this emulation (the
// original has the same requirement -- every p2pthread API call assumes
// it is made from inside a p2pthread task).
func (k *Kernel) CurrentTask() *Task {
	t, ok := k.current.lookup(goroutineID())
	if !ok {
		vlog.Fatalf("kernel: API called from a goroutine that is not a p2goemu task")
	}
	return t
}

// TCreate allocates a task descriptor in the not-yet-started state (spec.md
// section 4.3) and returns its id.
func (k *Kernel) TCreate(name [4]byte, pri uint32, mode TaskMode) (TaskID, p2err.Status) {
	if !validPriority(pri) {
		return 0, p2err.InvalidPriority
	}
	obj, ok := k.tasks.create(func(id uint32) *Task {
		t := &Task{
			id:       TaskID(id),
			name:     name,
			k:        k,
			policy:   PolicyFIFO,
			mode:     mode,
			priority: pri,
			killCh:   make(chan struct{}),
			doneCh:   make(chan struct{}),
		}
		t.state.Store(int32(StateNotStarted))
		return t
	})
	if !ok {
		return 0, p2err.ObjectTableFull
	}
	k.taskListRef.insert(obj)
	k.metrics.tasks.Inc()
	vlog.VI(2).Infof("kernel: t_create %q pri=%d -> task %d", name, pri, obj.id)
	return obj.id, p2err.None
}

// resolveTarget maps a possibly-zero task id to a descriptor, applying the
// "0 means self" convention several of the task/queue/semaphore families
// use. It returns ObjectDeleted if the id does not name a live task.
func (k *Kernel) resolveTarget(id TaskID) (*Task, p2err.Status) {
	if id == 0 {
		return k.CurrentTask(), p2err.None
	}
	t, ok := k.tasks.lookup(uint32(id))
	if !ok {
		return nil, p2err.ObjectDeleted
	}
	return t, p2err.None
}

// TStart transitions a task to READY and spawns its host goroutine, locked
// to its own OS thread so that applyHostSchedule's SCHED_FIFO/SCHED_RR
// priority applies only to this task (spec.md section 4.3).
func (k *Kernel) TStart(id TaskID, mode TaskMode, entry TaskEntry, args [4]uint32) p2err.Status {
	t, ok := k.tasks.lookup(uint32(id))
	if !ok {
		return p2err.ObjectDeleted
	}
	if t.State() != StateNotStarted {
		return p2err.AlreadyActive
	}
	t.mode = mode
	t.policy = PolicyFIFO
	if mode&TaskTimeSliced != 0 {
		t.policy = PolicyRoundRobin
	}
	t.state.Store(int32(StateReady))
	t.started.Store(true)

	ready := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(t.doneCh)

		gid := goroutineID()
		t.goroutineID.Store(gid)
		k.current.bind(gid, t)
		defer k.current.unbind(gid)

		applyHostSchedule(t.policy, t.priority)
		close(ready)

		entry(args[0], args[1], args[2], args[3])

		// A task whose entry returns without calling t_delete(0) is
		// self-deleted implicitly, matching the pthread cleanup handler
		// the original installs around the task body.
		if t.State() != StateDeleted {
			k.TDelete(0)
		}
	}()
	<-ready
	vlog.VI(2).Infof("kernel: t_start task %d mode=%x", id, mode)
	return p2err.None
}

// TSuspend self-suspends or suspends another task. Per spec.md section 4.1,
// a task that holds the scheduler lock silently declines to suspend
// itself (suspending the exclusive-lock holder would stall every other
// task, including whoever would have to resume it).
func (k *Kernel) TSuspend(id TaskID) p2err.Status {
	t, status := k.resolveTarget(id)
	if !status.OK() {
		return status
	}
	if id == 0 && k.schedLockedBy(t) {
		vlog.VI(2).Infof("kernel: t_suspend(self) declined, task %d holds the scheduler lock", t.id)
		return p2err.None
	}
	if t.suspended.Load() {
		return p2err.AlreadySuspended
	}
	t.suspended.Store(true)
	t.state.Store(int32(StateSelfSuspended))
	vlog.VI(2).Infof("kernel: t_suspend task %d", t.id)
	return p2err.None
}

// TResume resumes a task suspended by TSuspend.
func (k *Kernel) TResume(id TaskID) p2err.Status {
	t, status := k.resolveTarget(id)
	if !status.OK() {
		return status
	}
	if !t.suspended.Load() {
		return p2err.NotSuspended
	}
	t.suspendMu.Lock()
	t.suspended.Store(false)
	t.state.Store(int32(StateReady))
	t.suspendCV.Broadcast()
	t.suspendMu.Unlock()
	vlog.VI(2).Infof("kernel: t_resume task %d", t.id)
	return p2err.None
}

// TDelete deletes the task named by id, or the calling task if id == 0.
func (k *Kernel) TDelete(id TaskID) p2err.Status {
	t, status := k.resolveTarget(id)
	if !status.OK() {
		return status
	}

	selfDelete := t == k.CurrentTaskOrNil()

	t.state.Store(int32(StateDeleted))
	k.forceReleaseSchedLock(t)
	t.kill()

	if wq := t.waitOn; wq != nil {
		wq.remove(t)
	}

	k.tasks.remove(uint32(t.id))
	k.taskListRef.remove(t)
	k.metrics.tasks.Dec()
	vlog.VI(2).Infof("kernel: t_delete task %d (self=%v)", t.id, selfDelete)

	if !selfDelete && t.started.Load() {
		<-t.doneCh // join: wait for the target's goroutine to actually exit.
	}
	return p2err.None
}

// CurrentTaskOrNil is like CurrentTask but returns nil instead of panicking
// when called from a non-task goroutine (used internally by TDelete, which
// may legitimately be invoked from the bootstrap goroutine before it has
// registered itself as a task).
func (k *Kernel) CurrentTaskOrNil() *Task {
	t, ok := k.current.lookup(goroutineID())
	if !ok {
		return nil
	}
	return t
}

// TSetPri sets tid's priority, returning the previous value. A 0 tid
// targets the caller. The whole call runs under the scheduler lock, as
// the original does: the new value is written to Task.priority
// unconditionally, but a target that is the calling task only has its
// *host thread* priority reapplied at the matching SchedUnlock (and, if
// nested, possibly an enclosing one) -- exactly the "deferred until
// unlock" rule of spec.md section 4.3, with no separate field needed
// since SchedUnlock always restores from this same field.
func (k *Kernel) TSetPri(id TaskID, newPri uint32) (oldPri uint32, status p2err.Status) {
	if !validPriority(newPri) {
		return 0, p2err.InvalidPriority
	}
	k.SchedLock()
	defer k.SchedUnlock()

	t, status := k.resolveTarget(id)
	if !status.OK() {
		return 0, status
	}
	old := t.priority
	t.priority = newPri

	self := k.CurrentTask()
	if id != 0 && t != self {
		applyHostSchedule(t.policy, t.priority)
	}
	return old, p2err.None
}

// TMode toggles the calling task's mode flags (preemptibility and
// time-slicing), returning the previous flags. Preemptibility is realized
// by acquiring/releasing the scheduler lock, per spec.md section 4.3.
func (k *Kernel) TMode(mask, newFlags TaskMode) (oldFlags TaskMode, status p2err.Status) {
	self := k.CurrentTask()
	old := self.mode
	self.mode = (old &^ mask) | (newFlags & mask)

	wasNoPreempt := old&TaskNoPreempt != 0
	isNoPreempt := self.mode&TaskNoPreempt != 0
	if !wasNoPreempt && isNoPreempt {
		k.SchedLock()
	} else if wasNoPreempt && !isNoPreempt {
		k.SchedUnlock()
	}

	if mask&TaskTimeSliced != 0 {
		if self.mode&TaskTimeSliced != 0 {
			self.policy = PolicyRoundRobin
		} else {
			self.policy = PolicyFIFO
		}
		applyHostSchedule(self.policy, self.priority)
	}
	return old, p2err.None
}

// TGetReg reads one of the task's eight notepad registers.
func (k *Kernel) TGetReg(id TaskID, reg uint32) (uint32, p2err.Status) {
	if reg > 7 {
		return 0, p2err.InvalidRegister
	}
	t, status := k.resolveTarget(id)
	if !status.OK() {
		return 0, status
	}
	return t.notepad[reg], p2err.None
}

// TSetReg writes one of the task's eight notepad registers.
func (k *Kernel) TSetReg(id TaskID, reg uint32, val uint32) p2err.Status {
	if reg > 7 {
		return p2err.InvalidRegister
	}
	t, status := k.resolveTarget(id)
	if !status.OK() {
		return status
	}
	t.notepad[reg] = val
	return p2err.None
}

// TIdent looks up a task by name. A zero name returns the caller's own id
// with success, matching arm/task.c's behaviour for this family
// specifically -- the queue/semaphore/partition families instead report
// ObjectNotFound for a zero name (see SPEC_FULL.md section 4).
func (k *Kernel) TIdent(name [4]byte) (TaskID, p2err.Status) {
	if name == ([4]byte{}) {
		return k.CurrentTask().id, p2err.None
	}
	t := k.taskListRef.find(func(t *Task) bool { return t.name == name })
	if t == nil {
		return 0, p2err.ObjectNotFound
	}
	return t.id, p2err.None
}
