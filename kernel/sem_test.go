package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

func TestSemaphoreBinary(t *testing.T) {
	s := NewSemaphore(true)
	require.Equal(t, errno.OK, s.Wait(0))
	assert.Equal(t, errno.EAGAIN, s.Wait(0))

	assert.True(t, s.Signal())
	// A binary semaphore saturates at one token.
	assert.False(t, s.Signal())
	require.Equal(t, errno.OK, s.Wait(0))
}

func TestSemaphoreCounting(t *testing.T) {
	s := NewCountingSemaphore(3, 2)
	assert.Equal(t, 2, s.Count())
	require.Equal(t, errno.OK, s.Wait(0))
	require.Equal(t, errno.OK, s.Wait(0))
	assert.Equal(t, errno.EAGAIN, s.Wait(0))

	assert.True(t, s.Signal())
	assert.True(t, s.Signal())
	assert.True(t, s.Signal())
	assert.False(t, s.Signal(), "count must saturate at max")
	assert.Equal(t, 3, s.Count())
}

func TestSemaphoreTimeout(t *testing.T) {
	s := NewSemaphore(false)
	start := time.Now()
	assert.Equal(t, errno.ETIME, s.Wait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSemaphoreSignalISR(t *testing.T) {
	s := NewSemaphore(false)

	woken := make(chan errno.Error, 1)
	go func() {
		woken <- s.Wait(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)

	assert.True(t, s.SignalISR(), "a waiter was pending")
	assert.Equal(t, errno.OK, <-woken)

	// With nobody waiting the ISR signal reports no wakeup.
	assert.False(t, s.SignalISR())
}
