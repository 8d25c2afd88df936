package kernel

import (
	"sync/atomic"
	"time"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Semaphore is a counting semaphore. A binary semaphore is the max==1
// case. Signalling saturates at the maximum count.
type Semaphore struct {
	tokens  chan struct{}
	waiters atomic.Int32
}

// NewSemaphore creates a binary semaphore, initially given or taken.
func NewSemaphore(full bool) *Semaphore {
	initial := 0
	if full {
		initial = 1
	}
	return NewCountingSemaphore(1, initial)
}

// NewCountingSemaphore creates a counting semaphore with the given
// maximum and initial count.
func NewCountingSemaphore(max, initial int) *Semaphore {
	if max < 1 {
		max = 1
	}
	if initial < 0 {
		initial = 0
	}
	if initial > max {
		initial = max
	}
	s := &Semaphore{tokens: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Wait takes a token. A timeout of 0 tries once and returns EAGAIN if
// none is available; otherwise expiry returns ETIME.
func (s *Semaphore) Wait(timeout time.Duration) errno.Error {
	s.waiters.Add(1)
	defer s.waiters.Add(-1)
	return acquire(s.tokens, timeout)
}

// Signal gives a token. Returns false when the count is already at its
// maximum.
func (s *Semaphore) Signal() bool {
	select {
	case s.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

// SignalISR is the interrupt-safe signal. It never blocks and reports
// whether a waiting task was made ready.
func (s *Semaphore) SignalISR() (woken bool) {
	return s.Signal() && s.waiters.Load() > 0
}

// Count returns the number of tokens currently held.
func (s *Semaphore) Count() int {
	return len(s.tokens)
}
