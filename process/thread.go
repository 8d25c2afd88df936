package process

import (
	"fmt"

	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/kernel/kres"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Thread is a kernel task sharing its parent process's stdio, globals
// and working directory. It is tracked as a resource of the parent;
// threads do not own further threads.
type Thread struct {
	hdr     kres.Header
	task    *kernel.Task
	process *Process
}

// StartThread spawns a thread of the calling process running entry.
func StartThread(name string, stackDepth int, entry func()) (*Thread, error) {
	p := Current()
	if p == nil {
		return nil, errno.ESRCH
	}
	return p.startThread(name, stackDepth, entry)
}

func (p *Process) startThread(name string, stackDepth int, entry func()) (*Thread, error) {
	th := &Thread{process: p}
	th.hdr.Init(kres.KindThread, th)
	task, err := kernel.TaskCreate(name, stackDepth, func() {
		t := kernel.CurrentTask()
		t.SetTag(th)
		entry()
		th.exitSelf()
	})
	if err != nil {
		return nil, err
	}
	th.task = task
	p.res.Register(th)
	return th, nil
}

// exitSelf releases the thread's resources only; the parent process is
// unaffected. It does not return when called on the thread's own task.
func (th *Thread) exitSelf() {
	// Releasing the Thread resource deletes the task.
	_ = th.process.res.Release(th, kres.KindThread)
	if kernel.CurrentTask() == th.task {
		kernel.TaskDelete(th.task)
	}
}

// Task returns the kernel task running the thread.
func (th *Thread) Task() *kernel.Task {
	return th.task
}

// Process returns the owning process.
func (th *Thread) Process() *Process {
	return th.process
}

// Head returns the resource header.
func (th *Thread) Head() *kres.Header {
	return &th.hdr
}

// Destroy stops the thread's task; invoked through the parent's
// resource list.
func (th *Thread) Destroy() error {
	if th.task != nil && !th.task.Finished() {
		kernel.TaskDelete(th.task)
	}
	return nil
}

// Register forwards resource tracking to the parent process; whatever
// a thread opens belongs to the process.
func (th *Thread) Register(r kres.Resource) {
	th.process.Register(r)
}

// Release forwards resource release to the parent process.
func (th *Thread) Release(r kres.Resource, kind kres.Kind) errno.Error {
	return th.process.Release(r, kind)
}

// CWD returns the parent process's working directory.
func (th *Thread) CWD() string {
	return th.process.CWD()
}

// SetErrno updates the parent process's errno cell.
func (th *Thread) SetErrno(e errno.Error) {
	th.process.SetErrno(e)
}

func (th *Thread) String() string {
	return fmt.Sprintf("thread of %v", th.process)
}

var _ kres.Owner = (*Thread)(nil)
var _ kres.Resource = (*Thread)(nil)
