// Package p2goemu is the source-compatible, flat-function surface over
// package kernel: the historical API the legacy applications this
// emulation targets were written against was a single global namespace
// of C functions (t_create, q_send, sm_p, ...), not a method set on a
// runtime-context object. DESIGN NOTES ask for both: explicit
// runtime-context objects internally (kernel.Kernel), with a
// thread-local-style default for ergonomics at the boundary. This file
// is that boundary -- every call here is a one-line forward to the
// package-level default kernel.
package p2goemu

import (
	"github.com/xxha/p2goemu/kernel"
	"github.com/xxha/p2goemu/p2err"
)

// Re-exported so callers need not import the kernel and p2err packages
// directly for the common path.
type (
	TaskID      = kernel.TaskID
	QueueID     = kernel.QueueID
	VQueueID    = kernel.VQueueID
	SemaID      = kernel.SemaID
	PartitionID = kernel.PartitionID
	BlockAddr   = kernel.BlockAddr
	Status      = p2err.Status
	TaskMode    = kernel.TaskMode
	EventOpt    = kernel.EventOpt
	QueueOpt    = kernel.QueueOpt
	SemaOpt     = kernel.SemaOpt
	PartitionOpt = kernel.PartitionOpt
)

const (
	TaskPreempt       = kernel.TaskPreempt
	TaskNoPreempt     = kernel.TaskNoPreempt
	TaskNotTimeSliced = kernel.TaskNotTimeSliced
	TaskTimeSliced    = kernel.TaskTimeSliced

	EventWait   = kernel.EventWait
	EventNoWait = kernel.EventNoWait
	EventAll    = kernel.EventAll
	EventAny    = kernel.EventAny

	QueueWait     = kernel.QueueWait
	QueueNoWait   = kernel.QueueNoWait
	QueueFIFO     = kernel.QueueFIFO
	QueuePriority = kernel.QueuePriority
	QueueNoLimit  = kernel.QueueNoLimit
	QueueLimit    = kernel.QueueLimit

	SemaWait     = kernel.SemaWait
	SemaNoWait   = kernel.SemaNoWait
	SemaFIFO     = kernel.SemaFIFO
	SemaPriority = kernel.SemaPriority

	PartitionNoDeleteInUse = kernel.PartitionNoDeleteInUse
	PartitionDeleteInUse   = kernel.PartitionDeleteInUse
)

// Default is the package-level kernel every flat function below forwards
// to. Programs that need more than one isolated kernel instance (tests,
// mainly) should construct their own with kernel.New and call its
// methods directly instead of these package functions.
var Default = kernel.New(kernel.DefaultConfig())

// Name packs a short string into the 4-byte, non-terminated name format
// every object family's create/ident calls use. Strings longer than 4
// bytes are truncated; shorter ones are zero-padded.
func Name(s string) [4]byte {
	var n [4]byte
	copy(n[:], s)
	return n
}

// Boot registers the calling goroutine as the bootstrap task, id 0,
// exactly as a real p2pthread program's entry point implicitly does
// before calling user_sysroot (spec.md section 6, "System entry").
func Boot(name string) *kernel.Task { return Default.Boot(Name(name)) }

// Task family.
func TCreate(name string, pri uint32, mode TaskMode) (TaskID, Status) {
	return Default.TCreate(Name(name), pri, mode)
}
func TStart(id TaskID, mode TaskMode, entry kernel.TaskEntry, args [4]uint32) Status {
	return Default.TStart(id, mode, entry, args)
}
func TDelete(id TaskID) Status                    { return Default.TDelete(id) }
func TSuspend(id TaskID) Status                   { return Default.TSuspend(id) }
func TResume(id TaskID) Status                    { return Default.TResume(id) }
func TSetPri(id TaskID, newPri uint32) (uint32, Status) { return Default.TSetPri(id, newPri) }
func TMode(mask, newFlags TaskMode) (TaskMode, Status)  { return Default.TMode(mask, newFlags) }
func TGetReg(id TaskID, reg uint32) (uint32, Status)    { return Default.TGetReg(id, reg) }
func TSetReg(id TaskID, reg, val uint32) Status         { return Default.TSetReg(id, reg, val) }
func TIdent(name string) (TaskID, Status)               { return Default.TIdent(Name(name)) }

// Event family.
func EvSend(tid TaskID, events uint32) Status { return Default.EvSend(tid, events) }
func EvReceive(events uint32, opts EventOpt, ticks uint32) (uint32, Status) {
	return Default.EvReceive(events, opts, ticks)
}

// Fixed message queue family.
func QCreate(name string, capacity uint32, opts QueueOpt) (QueueID, Status) {
	return Default.QCreate(Name(name), capacity, opts)
}
func QDelete(qid QueueID) Status                 { return Default.QDelete(qid) }
func QSend(qid QueueID, msg [4]uint32) Status    { return Default.QSend(qid, msg) }
func QUrgent(qid QueueID, msg [4]uint32) Status  { return Default.QUrgent(qid, msg) }
func QBroadcast(qid QueueID, msg [4]uint32) (uint32, Status) {
	return Default.QBroadcast(qid, msg)
}
func QReceive(qid QueueID, opts QueueOpt, ticks uint32) ([4]uint32, Status) {
	return Default.QReceive(qid, opts, ticks)
}
func QIdent(name string) (QueueID, Status) { return Default.QIdent(Name(name)) }

// Variable-length message queue family.
func QVCreate(name string, capacity, maxLen uint32, opts QueueOpt) (VQueueID, Status) {
	return Default.QVCreate(Name(name), capacity, maxLen, opts)
}
func QVDelete(qid VQueueID) Status              { return Default.QVDelete(qid) }
func QVSend(qid VQueueID, data []byte) Status   { return Default.QVSend(qid, data) }
func QVUrgent(qid VQueueID, data []byte) Status { return Default.QVUrgent(qid, data) }
func QVBroadcast(qid VQueueID, data []byte) (uint32, Status) {
	return Default.QVBroadcast(qid, data)
}
func QVReceive(qid VQueueID, bufLen uint32, opts QueueOpt, ticks uint32) ([]byte, Status) {
	return Default.QVReceive(qid, bufLen, opts, ticks)
}
func QVIdent(name string) (VQueueID, Status) { return Default.QVIdent(Name(name)) }

// Counting semaphore family.
func SmCreate(name string, count uint32, opts SemaOpt) (SemaID, Status) {
	return Default.SmCreate(Name(name), count, opts)
}
func SmDelete(id SemaID) Status                          { return Default.SmDelete(id) }
func SmP(id SemaID, opts SemaOpt, ticks uint32) Status   { return Default.SmP(id, opts, ticks) }
func SmV(id SemaID) Status                               { return Default.SmV(id) }
func SmIdent(name string) (SemaID, Status)                { return Default.SmIdent(Name(name)) }

// Fixed-block partition family.
func PtCreate(name string, blockSize, numBlocks uint32, opts PartitionOpt) (PartitionID, Status) {
	return Default.PtCreate(Name(name), blockSize, numBlocks, opts)
}
func PtDelete(id PartitionID) Status                   { return Default.PtDelete(id) }
func PtGetbuf(id PartitionID) (BlockAddr, Status)      { return Default.PtGetbuf(id) }
func PtRetbuf(id PartitionID, addr BlockAddr) Status   { return Default.PtRetbuf(id, addr) }
func PtIdent(name string) (PartitionID, Status)        { return Default.PtIdent(Name(name)) }

// Time.
func TmWkafter(ticks uint32) Status { return Default.TmWkafter(ticks) }
