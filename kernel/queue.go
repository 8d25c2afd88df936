package kernel

import (
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Queue is a FIFO of fixed-size items with capacity fixed at creation.
// Send blocks on full, Receive blocks on empty, both honouring the
// usual timeout convention. The ISR variants never block.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	space *Semaphore
	avail *Semaphore
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make([]T, 0, capacity),
		space: NewCountingSemaphore(capacity, capacity),
		avail: NewCountingSemaphore(capacity, 0),
	}
}

// Send appends an item, waiting at most timeout for space.
func (q *Queue[T]) Send(v T, timeout time.Duration) errno.Error {
	if err := q.space.Wait(timeout); err != errno.OK {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.avail.Signal()
	return errno.OK
}

// Receive removes and returns the oldest item, waiting at most timeout
// for one to arrive.
func (q *Queue[T]) Receive(timeout time.Duration) (T, errno.Error) {
	var zero T
	if err := q.avail.Wait(timeout); err != errno.OK {
		return zero, err
	}
	q.mu.Lock()
	v := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	q.space.Signal()
	return v, errno.OK
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek(timeout time.Duration) (T, errno.Error) {
	var zero T
	if err := q.avail.Wait(timeout); err != errno.OK {
		return zero, err
	}
	q.mu.Lock()
	v := q.items[0]
	q.mu.Unlock()
	q.avail.Signal()
	return v, errno.OK
}

// SendISR is the interrupt-safe send. It never blocks and reports
// whether the item was queued.
func (q *Queue[T]) SendISR(v T) bool {
	return q.Send(v, 0) == errno.OK
}

// ReceiveISR is the interrupt-safe receive. It never blocks.
func (q *Queue[T]) ReceiveISR() (T, bool) {
	v, err := q.Receive(0)
	return v, err == errno.OK
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
