package process

import (
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/kernel/kres"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// The syscall surface for sync objects wraps the kernel primitives in
// resource records so a process's mutexes, semaphores and queues are
// reclaimed on exit like any other resource.

// MutexRes is a process-owned mutex.
type MutexRes struct {
	hdr kres.Header
	*kernel.Mutex
}

// NewMutex creates a mutex owned by the calling process.
func NewMutex(recursive bool) (*MutexRes, error) {
	p := Current()
	if p == nil {
		return nil, errno.ESRCH
	}
	m := &MutexRes{}
	if recursive {
		m.Mutex = kernel.NewRecursiveMutex()
	} else {
		m.Mutex = kernel.NewMutex()
	}
	m.hdr.Init(kres.KindMutex, m)
	p.Register(m)
	return m, nil
}

// Head returns the resource header.
func (m *MutexRes) Head() *kres.Header {
	return &m.hdr
}

// Destroy releases the mutex record.
func (m *MutexRes) Destroy() error {
	m.Mutex = nil
	return nil
}

// Close releases the mutex through the owner's resource list.
func (m *MutexRes) Close() error {
	p := Current()
	if p == nil {
		return errno.ESRCH
	}
	if e := p.Release(m, kres.KindMutex); e != errno.OK {
		return e
	}
	return nil
}

// SemaphoreRes is a process-owned semaphore.
type SemaphoreRes struct {
	hdr kres.Header
	*kernel.Semaphore
}

// NewSemaphore creates a counting semaphore owned by the calling
// process; max 1 makes it binary.
func NewSemaphore(max, initial int) (*SemaphoreRes, error) {
	p := Current()
	if p == nil {
		return nil, errno.ESRCH
	}
	s := &SemaphoreRes{Semaphore: kernel.NewCountingSemaphore(max, initial)}
	s.hdr.Init(kres.KindSemaphore, s)
	p.Register(s)
	return s, nil
}

// Head returns the resource header.
func (s *SemaphoreRes) Head() *kres.Header {
	return &s.hdr
}

// Destroy releases the semaphore record.
func (s *SemaphoreRes) Destroy() error {
	s.Semaphore = nil
	return nil
}

// Close releases the semaphore through the owner's resource list.
func (s *SemaphoreRes) Close() error {
	p := Current()
	if p == nil {
		return errno.ESRCH
	}
	if e := p.Release(s, kres.KindSemaphore); e != errno.OK {
		return e
	}
	return nil
}

// QueueRes is a process-owned FIFO of byte-slice items.
type QueueRes struct {
	hdr kres.Header
	*kernel.Queue[[]byte]
}

// NewQueue creates a queue owned by the calling process.
func NewQueue(capacity int) (*QueueRes, error) {
	p := Current()
	if p == nil {
		return nil, errno.ESRCH
	}
	q := &QueueRes{Queue: kernel.NewQueue[[]byte](capacity)}
	q.hdr.Init(kres.KindQueue, q)
	p.Register(q)
	return q, nil
}

// Head returns the resource header.
func (q *QueueRes) Head() *kres.Header {
	return &q.hdr
}

// Destroy releases the queue record.
func (q *QueueRes) Destroy() error {
	q.Queue = nil
	return nil
}

// Close releases the queue through the owner's resource list.
func (q *QueueRes) Close() error {
	p := Current()
	if p == nil {
		return errno.ESRCH
	}
	if e := p.Release(q, kres.KindQueue); e != errno.OK {
		return e
	}
	return nil
}
