// Package process manages processes and threads. A process is a
// scheduled task plus the context C-family user code expects: an
// argument table, a zeroed globals blob, standard I/O files, a working
// directory, an errno cell, and the list of every resource it owns so
// exit can reclaim them all.
package process

import (
	"fmt"
	"sync"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/kernel/kres"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
	"github.com/jerryzhang126/dnx-rtos/vfs"
)

// Attr are the optional attributes of a new process. A file reference
// wins over the corresponding path; coinciding stdio paths alias one
// open file instead of reopening it.
type Attr struct {
	CWD        string
	Stdin      *vfs.File
	Stdout     *vfs.File
	Stderr     *vfs.File
	StdinPath  string
	StdoutPath string
	StderrPath string
	HasParent  bool
	Detached   bool
}

// Process is one running program.
type Process struct {
	hdr  kres.Header
	pid  int
	argv []string
	prog *Program

	mu      sync.Mutex
	task    *kernel.Task
	stdin   *vfs.File
	stdout  *vfs.File
	stderr  *vfs.File
	globals []byte
	cwd     string
	status  int
	errnov  errno.Error
	timecnt uint32
	exited  bool

	res kres.List
}

var plist struct {
	procs map[int]*Process
}

var pidCnt int

func init() {
	plist.procs = make(map[int]*Process)
}

// nextPid bumps the monotonic PID counter. It is never rolled back and
// PIDs are never reused.
func nextPid() int {
	kernel.EnterCritical()
	defer kernel.ExitCritical()
	pidCnt++
	return pidCnt
}

// stdio open mode: append plus read.
const stdioFlags = fs.O_RDWR | fs.O_APPEND | fs.O_CREATE

// Create builds a process from a command line and schedules it.
// Returns the new PID.
func Create(commandLine string, attr *Attr) (int, error) {
	argv := ParseArgs(commandLine)
	if len(argv) == 0 || argv[0] == "" {
		return 0, errno.EINVAL
	}
	prog, err := FindProgram(argv[0])
	if err != nil {
		return 0, err
	}

	p := &Process{
		argv: argv,
		prog: prog,
		cwd:  "/",
	}
	p.hdr.Init(kres.KindProcess, p)

	unwind := func(err error) (int, error) {
		p.res.DestroyAll(nil)
		return 0, err
	}

	if prog.GlobalsSize > 0 {
		mem := newMemory(prog.GlobalsSize)
		p.res.Register(mem)
		p.globals = mem.buf
	}

	if err := p.applyAttr(attr); err != nil {
		return unwind(err)
	}

	p.pid = nextPid()

	task, err := kernel.TaskCreate(argv[0], prog.StackDepth, func() {
		t := kernel.CurrentTask()
		t.SetTag(p)
		p.mu.Lock()
		p.task = t
		p.mu.Unlock()
		status := prog.Main(append([]string(nil), p.argv...))
		p.exit(status)
	})
	if err != nil {
		return unwind(err)
	}
	p.mu.Lock()
	if p.task == nil {
		p.task = task
	}
	p.mu.Unlock()

	kernel.EnterCritical()
	plist.procs[p.pid] = p
	kernel.ExitCritical()

	printk.Debugf(p, "created pid %d", p.pid)
	return p.pid, nil
}

// applyAttr wires cwd and standard I/O according to the aliasing
// rules.
func (p *Process) applyAttr(attr *Attr) error {
	if attr == nil {
		return nil
	}
	if attr.CWD != "" {
		p.cwd = attr.CWD
	}
	var err error
	switch {
	case attr.Stdin != nil:
		p.stdin = attr.Stdin
	case attr.StdinPath != "":
		p.stdin, err = vfs.OpenFor(p, attr.StdinPath, stdioFlags)
		if err != nil {
			return err
		}
	}
	switch {
	case attr.Stdout != nil:
		p.stdout = attr.Stdout
	case attr.StdoutPath != "":
		if attr.StdoutPath == attr.StdinPath {
			p.stdout = p.stdin
		} else {
			p.stdout, err = vfs.OpenFor(p, attr.StdoutPath, stdioFlags)
			if err != nil {
				return err
			}
		}
	}
	switch {
	case attr.Stderr != nil:
		p.stderr = attr.Stderr
	case attr.StderrPath != "":
		switch attr.StderrPath {
		case attr.StdinPath:
			p.stderr = p.stdin
		case attr.StdoutPath:
			p.stderr = p.stdout
		default:
			p.stderr, err = vfs.OpenFor(p, attr.StderrPath, stdioFlags)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// exit releases everything the process owns and records the status.
// The resource list is empty before the task is deleted.
func (p *Process) exit(status int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.status = status
	p.mu.Unlock()
	p.res.DestroyAll(func(r kres.Resource) {
		if th, ok := r.(*Thread); ok {
			kernel.TaskSuspend(th.task)
		}
	})
	p.mu.Lock()
	p.stdin, p.stdout, p.stderr = nil, nil, nil
	p.globals = nil
	p.mu.Unlock()
	printk.Debugf(p, "exited with status %d", status)
}

// Exit terminates the calling process with the status; called from a
// thread it terminates only that thread. It does not return.
func Exit(status int) {
	t := kernel.CurrentTask()
	if t == nil {
		return
	}
	switch c := t.Tag().(type) {
	case *Thread:
		c.exitSelf()
	case *Process:
		c.exit(status)
		kernel.TaskDelete(t)
	}
}

// Abort prints "Aborted\n" on the process's stderr and exits with
// status -1. It does not return.
func Abort() {
	if p := Current(); p != nil {
		if f := p.Stderr(); f != nil {
			_, _ = f.Write([]byte("Aborted\n"))
		}
	}
	Exit(-1)
}

// Kill forcibly terminates a running process: its resources are
// released as on a normal exit with status -1, then its task is
// deleted. The record stays on the process list for the reaper.
func Kill(pid int) error {
	kernel.EnterCritical()
	p := plist.procs[pid]
	kernel.ExitCritical()
	if p == nil {
		return errno.ESRCH
	}
	p.exit(-1)
	p.mu.Lock()
	task := p.task
	p.mu.Unlock()
	if task != nil && !task.Finished() {
		kernel.TaskDelete(task)
	}
	return nil
}

// Destroy reaps an exited process: removes the record from the process
// list and hands out the captured status. Calling it while the task
// still runs returns EAGAIN; an unknown PID returns ESRCH.
func Destroy(pid int, status *int) error {
	kernel.EnterCritical()
	p := plist.procs[pid]
	kernel.ExitCritical()
	if p == nil {
		return errno.ESRCH
	}
	p.mu.Lock()
	task, exited := p.task, p.exited
	p.mu.Unlock()
	if !exited || (task != nil && !task.Finished()) {
		return errno.EAGAIN
	}
	if status != nil {
		*status = p.Status()
	}
	kernel.EnterCritical()
	delete(plist.procs, pid)
	kernel.ExitCritical()
	return nil
}

// Wait blocks until the process has exited, then reaps it like
// Destroy.
func Wait(pid int, status *int) error {
	kernel.EnterCritical()
	p := plist.procs[pid]
	kernel.ExitCritical()
	if p == nil {
		return errno.ESRCH
	}
	p.mu.Lock()
	task := p.task
	p.mu.Unlock()
	if task != nil {
		<-task.Done()
	}
	return Destroy(pid, status)
}

// Find returns the live process with the PID, or nil.
func Find(pid int) *Process {
	kernel.EnterCritical()
	defer kernel.ExitCritical()
	return plist.procs[pid]
}

// All returns a snapshot of the process list.
func All() []*Process {
	kernel.EnterCritical()
	defer kernel.ExitCritical()
	out := make([]*Process, 0, len(plist.procs))
	for _, p := range plist.procs {
		out = append(out, p)
	}
	return out
}

// Current resolves the process owning the calling task; for a thread
// that is the parent process.
func Current() *Process {
	t := kernel.CurrentTask()
	if t == nil {
		return nil
	}
	switch c := t.Tag().(type) {
	case *Process:
		return c
	case *Thread:
		return c.process
	}
	return nil
}

// ------------------------------------------------------------
// Process accessors. User code sees stdio, globals, cwd and errno as
// if they were globals; they resolve through the current task's tag.

// Pid returns the process identifier.
func (p *Process) Pid() int {
	return p.pid
}

// Name returns argv[0].
func (p *Process) Name() string {
	return p.argv[0]
}

// Argv returns a copy of the argument table.
func (p *Process) Argv() []string {
	return append([]string(nil), p.argv...)
}

// Task returns the kernel task running the process body.
func (p *Process) Task() *kernel.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task
}

// Stdin returns the standard input file, which may be nil.
func (p *Process) Stdin() *vfs.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdin
}

// Stdout returns the standard output file, which may be nil.
func (p *Process) Stdout() *vfs.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout
}

// Stderr returns the standard error file, which may be nil.
func (p *Process) Stderr() *vfs.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr
}

// Globals returns the program's zero-initialized state blob.
func (p *Process) Globals() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globals
}

// CWD returns the working directory; the VFS resolves relative paths
// against it.
func (p *Process) CWD() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// SetCWD changes the working directory.
func (p *Process) SetCWD(cwd string) {
	p.mu.Lock()
	p.cwd = cwd
	p.mu.Unlock()
}

// Errno returns the per-process errno cell.
func (p *Process) Errno() errno.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errnov
}

// SetErrno updates the per-process errno cell; the VFS calls it on
// every failing syscall.
func (p *Process) SetErrno(e errno.Error) {
	p.mu.Lock()
	p.errnov = e
	p.mu.Unlock()
}

// Status returns the exit status; valid after the task body returned.
func (p *Process) Status() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Exited reports whether the process body has returned.
func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// AddTime accounts CPU time ticks for load calculation.
func (p *Process) AddTime(ticks uint32) {
	p.mu.Lock()
	p.timecnt += ticks
	p.mu.Unlock()
}

// Time returns the accumulated CPU time ticks.
func (p *Process) Time() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timecnt
}

// Register tracks a resource on the process's list.
func (p *Process) Register(r kres.Resource) {
	p.res.Register(r)
}

// Release frees a resource previously registered, checking the kind.
func (p *Process) Release(r kres.Resource, kind kres.Kind) errno.Error {
	return p.res.Release(r, kind)
}

// Resources returns the current resource list length.
func (p *Process) Resources() int {
	return p.res.Len()
}

// Head returns the resource header stamping the record as a process.
func (p *Process) Head() *kres.Header {
	return &p.hdr
}

// Destroy tears the process down; the record itself is reclaimed by
// the reaper.
func (p *Process) Destroy() error {
	p.exit(-1)
	return nil
}

func (p *Process) String() string {
	return fmt.Sprintf("process %q", p.argv[0])
}

var _ kres.Owner = (*Process)(nil)
var _ kres.Resource = (*Process)(nil)

// memory is the globals blob resource.
type memory struct {
	hdr kres.Header
	buf []byte
}

func newMemory(size int) *memory {
	m := &memory{buf: make([]byte, size)}
	m.hdr.Init(kres.KindMemory, m)
	return m
}

func (m *memory) Head() *kres.Header {
	return &m.hdr
}

func (m *memory) Destroy() error {
	m.buf = nil
	return nil
}
