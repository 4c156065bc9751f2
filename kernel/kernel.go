// Package kernel implements the emulated pSOS+-style real-time kernel:
// tasks, events, fixed and variable-length message queues, counting
// semaphores, fixed-block partitions and tick-based timed waits, all
// built on top of goroutines and the nsync primitives instead of the
// original's pthreads/POSIX signals substrate.
//
// The historical C API was one flat global namespace (no separate
// translation units had their own kernel state); this package mirrors
// that by keeping every family's bookkeeping on one *Kernel, rather than
// splitting into ktask/kevent/kqueue/... packages that would otherwise
// need import-cycle-breaking interfaces just to let a wait queue reach
// back into a *Task.
package kernel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xxha/p2goemu/vlog"
)

// Config bounds the size of each object family's table and sets the tick
// duration used by TmWkafter and every timed wait. The original fixed
// these at system-generation time (sysconf.h); here they are runtime
// constructor arguments instead.
type Config struct {
	// Instance names this kernel for metrics ConstLabels, distinguishing
	// multiple *Kernel values in the same process (mainly useful in
	// tests).
	Instance string

	MaxTasks      uint32
	MaxQueues     uint32
	MaxVQueues    uint32
	MaxSemaphores uint32
	MaxPartitions uint32

	// Tick is the unit TmWkafter and every timed wait count in, matching
	// the original's 10ms KC_TICKS2SEC default (spec.md section 4.9).
	Tick time.Duration

	// Registerer receives this kernel's Prometheus metrics. A nil
	// Registerer (the default via DefaultConfig) disables registration
	// entirely, which test code that constructs many short-lived kernels
	// relies on to avoid duplicate-registration panics.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the Config used by the package-level default
// kernel and by callers who have no reason to deviate from it.
func DefaultConfig() Config {
	return Config{
		Instance:      "default",
		MaxTasks:      256,
		MaxQueues:     64,
		MaxVQueues:    64,
		MaxSemaphores: 128,
		MaxPartitions: 32,
		Tick:          10 * time.Millisecond,
	}
}

// Kernel holds every family's object table and the scheduler lock's
// state. All exported methods are safe for concurrent use by any number
// of tasks.
type Kernel struct {
	cfg Config

	sched schedulerLock

	tasks       *table[Task]
	taskListRef taskList
	current     *currentTaskTable

	queues     *table[fixedQueue]
	vqueues    *table[varQueue]
	semas      *table[semaphore]
	partitions *table[partition]

	metrics *kernelMetrics
}

// New constructs a Kernel from cfg. Table id ranges start at 1 for every
// family except variable-length queues, whose ids historically start at
// 0 (see DESIGN.md's variable-length queue section).
func New(cfg Config) *Kernel {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	k := &Kernel{
		cfg:        cfg,
		tasks:      newTable[Task](1, cfg.MaxTasks),
		current:    newCurrentTaskTable(),
		queues:     newTable[fixedQueue](1, cfg.MaxQueues),
		vqueues:    newTable[varQueue](0, cfg.MaxVQueues),
		semas:      newTable[semaphore](1, cfg.MaxSemaphores),
		partitions: newTable[partition](1, cfg.MaxPartitions),
		metrics:    newKernelMetrics(cfg.Registerer, cfg.Instance),
	}
	vlog.VI(1).Infof("kernel: new instance %q tick=%s tasks<=%d queues<=%d vqueues<=%d semas<=%d partitions<=%d",
		cfg.Instance, cfg.Tick, cfg.MaxTasks, cfg.MaxQueues, cfg.MaxVQueues, cfg.MaxSemaphores, cfg.MaxPartitions)
	return k
}

// Tick returns the configured timed-wait tick duration.
func (k *Kernel) Tick() time.Duration { return k.cfg.Tick }

// Boot registers the calling goroutine as the kernel's bootstrap task
// (id 0, maximum priority) without going through TCreate/TStart. Every
// p2goemu program's entry point calls this once before making any other
// kernel call, mirroring the original's implicit "root task" that
// pthread_main runs as before spawning anything with t_create/t_start.
func (k *Kernel) Boot(name [4]byte) *Task {
	t := &Task{
		id:       0,
		name:     name,
		k:        k,
		policy:   PolicyFIFO,
		priority: elevatedPriority - 1,
		killCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	t.state.Store(int32(StateReady))
	t.started.Store(true)
	gid := goroutineID()
	t.goroutineID.Store(gid)
	k.current.bind(gid, t)
	k.taskListRef.insert(t)
	vlog.VI(1).Infof("kernel: boot task %q bound to goroutine %d", name, gid)
	return t
}

// Name packs a short string into the 4-byte, non-terminated name format
// every object family's create/ident calls take. Strings longer than 4
// bytes are truncated; shorter ones are zero-padded.
func Name(s string) [4]byte {
	var n [4]byte
	copy(n[:], s)
	return n
}
