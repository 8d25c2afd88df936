// Package kres tracks the resources a process owns. Every tracked
// object embeds a Header as its first field; the headers form a singly
// linked list per process so that teardown can reclaim everything the
// process acquired, in order, whatever its type.
package kres

import (
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
)

// Kind tags the concrete type behind a resource header.
type Kind uint8

// Resource kinds.
const (
	KindNone Kind = iota
	KindFile
	KindDir
	KindMutex
	KindQueue
	KindSemaphore
	KindMemory
	KindThread
	KindProcess
)

var kindNames = map[Kind]string{
	KindNone:      "none",
	KindFile:      "file",
	KindDir:       "dir",
	KindMutex:     "mutex",
	KindQueue:     "queue",
	KindSemaphore: "semaphore",
	KindMemory:    "memory",
	KindThread:    "thread",
	KindProcess:   "process",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Header is embedded as the first field of every tracked resource.
type Header struct {
	kind Kind
	next *Header
	self Resource
}

// Init stamps the header with its kind and the object it heads.
func (h *Header) Init(kind Kind, self Resource) {
	h.kind = kind
	h.self = self
}

// Kind returns the resource kind.
func (h *Header) Kind() Kind {
	return h.kind
}

// Resource is any object tracked on a resource list.
type Resource interface {
	Head() *Header
	Destroy() error
}

// Owner is whatever accepts resources on behalf of the current task.
// The process layer implements it; the VFS finds it through the task
// tag so opened files land on the right list.
type Owner interface {
	Register(r Resource)
	Release(r Resource, kind Kind) errno.Error
}

// Traversal beyond this depth means the list is corrupted.
const maxDepth = 1024

// List is the per-process resource list.
type List struct {
	head *Header
}

// Register links the resource at the head of the list.
func (l *List) Register(r Resource) {
	h := r.Head()
	kernel.EnterCritical()
	h.next = l.head
	l.head = h
	kernel.ExitCritical()
}

// Release unlinks the resource and calls its destructor. The caller
// states the kind it believes it is freeing; a mismatch means it was
// about to free the wrong type through the wrong wrapper, which is
// fatal. An absent resource returns ENOENT.
func (l *List) Release(r Resource, kind Kind) errno.Error {
	target := r.Head()
	var found *Header
	kernel.EnterCritical()
	depth := 0
	var prev *Header
	for h := l.head; h != nil; h = h.next {
		if depth++; depth > maxDepth {
			kernel.ExitCritical()
			kernel.Panic("resource list deeper than %d entries", maxDepth)
		}
		if h == target {
			if h.kind != kind {
				kernel.ExitCritical()
				kernel.Panic("resource kind mismatch: have %v, expected %v", h.kind, kind)
			}
			if prev == nil {
				l.head = h.next
			} else {
				prev.next = h.next
			}
			h.next = nil
			found = h
			break
		}
		prev = h
	}
	kernel.ExitCritical()
	if found == nil {
		return errno.ENOENT
	}
	if err := found.self.Destroy(); err != nil {
		printk.Errorf(nil, "destroying %v resource: %v", found.kind, err)
	}
	return errno.OK
}

// DestroyAll tears the whole list down. Threads are suspended first so
// nothing mutates the list while its entries die, then every entry is
// destroyed in list order. Unknown kinds are logged and skipped;
// teardown always completes.
func (l *List) DestroyAll(suspendThread func(Resource)) {
	kernel.EnterCritical()
	head := l.head
	l.head = nil
	kernel.ExitCritical()

	if suspendThread != nil {
		for h := head; h != nil; h = h.next {
			if h.kind == KindThread {
				suspendThread(h.self)
			}
		}
	}
	for h := head; h != nil; {
		next := h.next
		h.next = nil
		switch h.kind {
		case KindFile, KindDir, KindMutex, KindQueue, KindSemaphore, KindMemory, KindThread:
			if err := h.self.Destroy(); err != nil {
				printk.Errorf(nil, "teardown of %v resource: %v", h.kind, err)
			}
		default:
			printk.Errorf(nil, "teardown skipping unknown resource kind %d", h.kind)
		}
		h = next
	}
}

// Len counts the list entries.
func (l *List) Len() int {
	kernel.EnterCritical()
	defer kernel.ExitCritical()
	n := 0
	for h := l.head; h != nil; h = h.next {
		if n++; n > maxDepth {
			break
		}
	}
	return n
}

var _ Owner = (*List)(nil)
