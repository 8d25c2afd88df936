package kernel

import (
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Mutex is a lock with timed acquisition. The recursive variant lets
// the owner lock again; it must unlock as many times as it locked.
// Priority inheritance is the scheduler's business, not tracked here.
type Mutex struct {
	token     chan struct{}
	recursive bool

	mu    sync.Mutex
	owner int64
	depth int
}

// NewMutex creates a normal, non-reentrant mutex.
func NewMutex() *Mutex {
	return newMutex(false)
}

// NewRecursiveMutex creates a mutex the same owner may lock multiple
// times.
func NewRecursiveMutex() *Mutex {
	return newMutex(true)
}

func newMutex(recursive bool) *Mutex {
	m := &Mutex{
		token:     make(chan struct{}, 1),
		recursive: recursive,
	}
	m.token <- struct{}{}
	return m
}

// Lock acquires the mutex, waiting at most timeout.
func (m *Mutex) Lock(timeout time.Duration) errno.Error {
	id := goroutineID()
	if m.recursive {
		m.mu.Lock()
		if m.depth > 0 && m.owner == id {
			m.depth++
			m.mu.Unlock()
			return errno.OK
		}
		m.mu.Unlock()
	}
	if err := acquire(m.token, timeout); err != errno.OK {
		return err
	}
	m.mu.Lock()
	m.owner = id
	m.depth = 1
	m.mu.Unlock()
	return errno.OK
}

// Unlock releases the mutex. Unlocking a mutex the caller does not
// hold returns EPERM.
func (m *Mutex) Unlock() errno.Error {
	id := goroutineID()
	m.mu.Lock()
	if m.depth == 0 || m.owner != id {
		m.mu.Unlock()
		return errno.EPERM
	}
	m.depth--
	release := m.depth == 0
	if release {
		m.owner = 0
	}
	m.mu.Unlock()
	if release {
		m.token <- struct{}{}
	}
	return errno.OK
}

// Locked reports whether anybody holds the mutex.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth > 0
}
