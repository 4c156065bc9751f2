package kernel

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the runtime-assigned id of the calling goroutine by
// parsing the header line of runtime.Stack's output ("goroutine 123
// [running]:"). This is the closest Go equivalent of the "opaque per-thread
// pointer" the design notes call for: unlike C, Go gives no supported way
// to attach arbitrary data directly to a goroutine, so the id is used as
// the key into a side table instead (see currentTaskTable below).
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}

// currentTaskTable maps goroutine id -> *Task for every goroutine spawned by
// TStart, giving CurrentTask an O(1) lookup (amortized; the id extraction
// above is the dominant cost) in place of the original's linear scan of
// the global task list comparing pthread_self() against each tcb's thread
// handle.
type currentTaskTable struct {
	mu sync.RWMutex
	m  map[uint64]*Task
}

func newCurrentTaskTable() *currentTaskTable {
	return &currentTaskTable{m: make(map[uint64]*Task)}
}

func (c *currentTaskTable) bind(gid uint64, t *Task) {
	c.mu.Lock()
	c.m[gid] = t
	c.mu.Unlock()
}

func (c *currentTaskTable) unbind(gid uint64) {
	c.mu.Lock()
	delete(c.m, gid)
	c.mu.Unlock()
}

func (c *currentTaskTable) lookup(gid uint64) (*Task, bool) {
	c.mu.RLock()
	t, ok := c.m[gid]
	c.mu.RUnlock()
	return t, ok
}
