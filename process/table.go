package process

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Program is one entry of the static program table. User programs are
// linked into the image and register themselves from an init function.
type Program struct {
	// Name the command line resolves.
	Name string
	// Main is the program body; its return value becomes the exit
	// status.
	Main func(args []string) int
	// GlobalsSize is the size of the zeroed blob allocated as the
	// program's singleton state.
	GlobalsSize int
	// StackDepth is handed to the scheduler on task creation.
	StackDepth int
}

// kworkerName is reserved; it resolves to the internal syscall worker
// instead of the program table.
const kworkerName = "kworker"

var progTable struct {
	mu    sync.Mutex
	progs map[string]*Program
}

// RegisterProgram adds a program to the static table. Called from
// program init functions; duplicate names are a build mistake.
func RegisterProgram(p *Program) {
	if p.Name == "" || p.Main == nil || p.Name == kworkerName {
		panic(fmt.Sprintf("invalid program registration %q", p.Name))
	}
	progTable.mu.Lock()
	defer progTable.mu.Unlock()
	if progTable.progs == nil {
		progTable.progs = make(map[string]*Program)
	}
	if _, dup := progTable.progs[p.Name]; dup {
		panic(fmt.Sprintf("program %q registered twice", p.Name))
	}
	progTable.progs[p.Name] = p
}

// FindProgram resolves a program name against the table.
func FindProgram(name string) (*Program, error) {
	if name == kworkerName {
		return kworkerProgram, nil
	}
	progTable.mu.Lock()
	defer progTable.mu.Unlock()
	p := progTable.progs[name]
	if p == nil {
		return nil, fmt.Errorf("program %q: %w", name, errno.ENOENT)
	}
	return p, nil
}

// Programs returns the table sorted by name; procfs lists it under
// /bin.
func Programs() []*Program {
	progTable.mu.Lock()
	defer progTable.mu.Unlock()
	out := make([]*Program, 0, len(progTable.progs))
	for _, p := range progTable.progs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Syscall worker. Jobs submitted from interrupt-like contexts run on
// its task.
var kworkerJobs = kernel.NewQueue[func()](16)

var kworkerProgram = &Program{
	Name:       kworkerName,
	StackDepth: 1024,
	Main: func(args []string) int {
		for {
			job, err := kworkerJobs.Receive(kernel.MaxDelay)
			if err != errno.OK {
				return 0
			}
			job()
		}
	},
}

// SubmitJob queues work for the syscall worker. It never blocks and
// reports whether the job was accepted.
func SubmitJob(job func()) bool {
	return kworkerJobs.SendISR(job)
}
