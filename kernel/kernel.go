// Package kernel is the binding to the task scheduler. Tasks map onto
// goroutines: creation spawns a goroutine running the entry through a
// trampoline which maintains the current-task registry, and deletion
// cancels the task at its next suspension point. Priorities are kept as
// task attributes and handed to the host scheduler as hints only.
//
// The package also carries the synchronization primitives (semaphore,
// mutex, queue) and the critical section used to guard the kernel's
// short list updates.
package kernel

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
)

// MaxDelay means wait forever. A timeout of 0 means try once and do
// not block.
const MaxDelay time.Duration = 1<<63 - 1

// Task is a handle to a scheduled task.
type Task struct {
	name       string
	stackDepth int

	mu        sync.Mutex
	priority  int
	tag       interface{}
	gate      chan struct{} // closed while the task is runnable
	killed    chan struct{}
	done      chan struct{}
	suspended bool
	deleted   bool
}

var tasks struct {
	mu  sync.RWMutex
	byG map[int64]*Task
}

var bootTime = time.Now()

func init() {
	tasks.byG = make(map[int64]*Task)
}

// goroutineID extracts the id of the calling goroutine from its stack
// header. It is only used to key the current-task registry and the
// critical section owner slot.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// The header looks like "goroutine 123 [running]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// TaskCreate spawns a new task running entry. stackDepth is recorded
// for accounting only; goroutine stacks grow on demand.
func TaskCreate(name string, stackDepth int, entry func()) (*Task, error) {
	if entry == nil {
		return nil, errno.EINVAL
	}
	runnable := make(chan struct{})
	close(runnable)
	t := &Task{
		name:       name,
		stackDepth: stackDepth,
		gate:       runnable,
		killed:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go func() {
		id := goroutineID()
		tasks.mu.Lock()
		tasks.byG[id] = t
		tasks.mu.Unlock()
		defer func() {
			tasks.mu.Lock()
			delete(tasks.byG, id)
			tasks.mu.Unlock()
			close(t.done)
		}()
		entry()
	}()
	return t, nil
}

// TaskDelete cancels the task. The task stops at its next suspension
// point; deleting the current task does not return.
func TaskDelete(t *Task) {
	t.mu.Lock()
	if !t.deleted {
		t.deleted = true
		close(t.killed)
	}
	t.mu.Unlock()
	if CurrentTask() == t {
		runtime.Goexit()
	}
}

// TaskSuspend stops the task at its next suspension point until
// TaskResume is called.
func TaskSuspend(t *Task) {
	t.mu.Lock()
	if !t.suspended {
		t.suspended = true
		t.gate = make(chan struct{})
	}
	t.mu.Unlock()
}

// TaskResume makes a suspended task runnable again.
func TaskResume(t *Task) {
	t.mu.Lock()
	if t.suspended {
		t.suspended = false
		close(t.gate)
	}
	t.mu.Unlock()
}

// TaskYield gives up the processor to another ready task.
func TaskYield() {
	if t := CurrentTask(); t != nil {
		t.checkpoint()
	}
	runtime.Gosched()
}

// TaskDelay suspends the current task for the duration.
func TaskDelay(d time.Duration) {
	t := CurrentTask()
	var killed <-chan struct{}
	if t != nil {
		t.checkpoint()
		killed = t.killedChan()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-killed:
		runtime.Goexit()
	}
	if t != nil {
		t.checkpoint()
	}
}

// CurrentTask returns the handle of the calling task, or nil when the
// caller is not a kernel task.
func CurrentTask() *Task {
	tasks.mu.RLock()
	t := tasks.byG[goroutineID()]
	tasks.mu.RUnlock()
	return t
}

// TickCount returns milliseconds since boot.
func TickCount() uint32 {
	return uint32(time.Since(bootTime) / time.Millisecond)
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// StackDepth returns the stack depth the task was created with.
func (t *Task) StackDepth() int {
	return t.stackDepth
}

// Priority returns the task priority.
func (t *Task) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority changes the task priority. Priorities are signed and
// centred on 0.
func (t *Task) SetPriority(priority int) {
	t.mu.Lock()
	t.priority = priority
	t.mu.Unlock()
}

// Tag returns the pointer stored with SetTag, or nil.
func (t *Task) Tag() interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tag
}

// SetTag stores an opaque pointer with the task. The process layer
// uses the slot to find the process owning a task.
func (t *Task) SetTag(tag interface{}) {
	t.mu.Lock()
	t.tag = tag
	t.mu.Unlock()
}

// Done is closed when the task has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Finished reports whether the task has returned.
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("task %q", t.name)
}

func (t *Task) killedChan() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

// checkpoint is a cancellation and suspension point. A deleted task
// exits here; a suspended task blocks here until resumed.
func (t *Task) checkpoint() {
	for {
		t.mu.Lock()
		gate, killed := t.gate, t.killed
		t.mu.Unlock()
		select {
		case <-killed:
			runtime.Goexit()
		default:
		}
		select {
		case <-gate:
			return
		case <-killed:
			runtime.Goexit()
		}
	}
}

// acquire waits for a token on ch honouring the timeout convention:
// 0 tries once, MaxDelay blocks forever. A deleted task exits instead
// of returning.
func acquire(ch <-chan struct{}, timeout time.Duration) errno.Error {
	if timeout == 0 {
		select {
		case <-ch:
			return errno.OK
		default:
			return errno.EAGAIN
		}
	}
	var killed <-chan struct{}
	if t := CurrentTask(); t != nil {
		t.checkpoint()
		killed = t.killedChan()
	}
	if timeout == MaxDelay {
		select {
		case <-ch:
			return errno.OK
		case <-killed:
			runtime.Goexit()
			return errno.ETIME
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return errno.OK
	case <-timer.C:
		return errno.ETIME
	case <-killed:
		runtime.Goexit()
		return errno.ETIME
	}
}

var crit struct {
	mu    sync.Mutex
	owner int64
	depth int
}

// EnterCritical suspends scheduling decisions for the caller. Critical
// sections nest and must stay short; blocking inside one is forbidden.
func EnterCritical() {
	id := goroutineID()
	for {
		crit.mu.Lock()
		if crit.depth == 0 || crit.owner == id {
			crit.owner = id
			crit.depth++
			crit.mu.Unlock()
			return
		}
		crit.mu.Unlock()
		runtime.Gosched()
	}
}

// ExitCritical leaves the innermost critical section.
func ExitCritical() {
	crit.mu.Lock()
	if crit.depth == 0 || crit.owner != goroutineID() {
		crit.mu.Unlock()
		Panic("critical section exit without matching enter")
	}
	crit.depth--
	if crit.depth == 0 {
		crit.owner = 0
	}
	crit.mu.Unlock()
}

// Panic reports a fatal kernel error and halts. On the host this stops
// the process; on a target it would reset the chip.
func Panic(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	printk.Errorf(nil, "kernel panic: %s", msg)
	panic("kernel panic: " + msg)
}
