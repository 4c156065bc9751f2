package kernel

// Option flag bits, kept numerically identical to the original pSOS+-style
// header (p2linux.h) so that callers porting literal flag constants from
// that API see the same values.

// TaskMode controls preemptibility and time-slicing, set via TMode or at
// TCreate time.
type TaskMode uint32

const (
	TaskPreempt       TaskMode = 0x0 // T_PREEMPT: preemptible (default)
	TaskNoPreempt     TaskMode = 0x1 // T_NOPREEMPT
	TaskNotTimeSliced TaskMode = 0x0 // T_NOTSLICE (default)
	TaskTimeSliced    TaskMode = 0x2 // T_TSLICE
)

// EventOpt controls ev_receive's match rule and wait behaviour.
type EventOpt uint32

const (
	EventWait   EventOpt = 0x0 // EV_WAIT
	EventNoWait EventOpt = 0x1 // EV_NOWAIT
	EventAll    EventOpt = 0x0 // EV_ALL
	EventAny    EventOpt = 0x2 // EV_ANY
)

// QueueOpt controls q_create/q_receive pend order, capacity policy and wait
// behaviour; also used by the variable-length queue family.
type QueueOpt uint32

const (
	QueueWait     QueueOpt = 0x0 // Q_WAIT
	QueueNoWait   QueueOpt = 0x1 // Q_NOWAIT
	QueueFIFO     QueueOpt = 0x0 // Q_FIFO
	QueuePriority QueueOpt = 0x2 // Q_PRIOR
	QueueNoLimit  QueueOpt = 0x0 // Q_NOLIMIT
	QueueLimit    QueueOpt = 0x4 // Q_LIMIT
)

// SemaOpt controls sm_create's pend order and sm_p's wait behaviour.
type SemaOpt uint32

const (
	SemaWait     SemaOpt = 0x0 // SM_WAIT
	SemaNoWait   SemaOpt = 0x1 // SM_NOWAIT
	SemaFIFO     SemaOpt = 0x0 // SM_FIFO
	SemaPriority SemaOpt = 0x2 // SM_PRIOR
)

// PartitionOpt controls whether pt_delete is allowed while blocks are
// checked out.
type PartitionOpt uint32

const (
	PartitionNoDeleteInUse PartitionOpt = 0x0 // PT_NODEL (default)
	PartitionDeleteInUse   PartitionOpt = 0x4 // PT_DEL
)

// pendOrder is the internal, family-agnostic wait-queue selection policy
// derived from whichever family-specific *Opt carried the PRIOR bit.
type pendOrder uint8

const (
	pendFIFO pendOrder = iota
	pendPriority
)

// Policy is a task's host-thread scheduling policy, selected by the mode
// passed to TStart.
type Policy uint8

const (
	PolicyFIFO Policy = iota
	PolicyRoundRobin
)

// Priority bounds. Exported priorities run 1..254; 255 (policyMaxPriority)
// is reserved for scheduler-lock elevation and is never directly assignable
// by TSetPri, matching spec.md section 4.3's "policy-max is reserved".
const (
	MinPriority        uint32 = 1
	MaxAssignablePriority uint32 = 254
	elevatedPriority   uint32 = 255
)

func validPriority(p uint32) bool {
	return p >= MinPriority && p <= MaxAssignablePriority
}
