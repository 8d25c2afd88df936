package ramfs

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// pipeDepth is the FIFO buffer size in bytes.
const pipeDepth = 512

// pollInterval bounds how long a blocked pipe end waits before
// re-checking whether the peer has gone away.
const pollInterval = 10 * time.Millisecond

// pipe is the byte channel behind a FIFO node.
type pipe struct {
	q       *kernel.Queue[byte]
	readers atomic.Int32
	writers atomic.Int32
}

func newPipe() *pipe {
	return &pipe{q: kernel.NewQueue[byte](pipeDepth)}
}

func (p *pipe) attach(reads, writes bool) {
	if reads {
		p.readers.Add(1)
	}
	if writes {
		p.writers.Add(1)
	}
}

func (p *pipe) detach(reads, writes bool) {
	if reads {
		p.readers.Add(-1)
	}
	if writes {
		p.writers.Add(-1)
	}
}

// read blocks until at least one byte arrives, then drains what is
// buffered. With no writer attached and nothing buffered it reports
// end of file.
func (p *pipe) read(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	for {
		b, err := p.q.Receive(pollInterval)
		if err == errno.OK {
			n := 1
			dst[0] = b
			for n < len(dst) {
				b, ok := p.q.ReceiveISR()
				if !ok {
					break
				}
				dst[n] = b
				n++
			}
			return n, nil
		}
		if p.writers.Load() == 0 {
			return 0, io.EOF
		}
	}
}

// write blocks until every byte is queued. With no reader attached the
// pipe is broken.
func (p *pipe) write(src []byte) (int, error) {
	for i, b := range src {
		for {
			if p.readers.Load() == 0 {
				return i, errno.EPIPE
			}
			if p.q.Send(b, pollInterval) == errno.OK {
				break
			}
		}
	}
	return len(src), nil
}

// fifoHandle is an open FIFO end.
type fifoHandle struct {
	fs     *Fs
	n      *node
	reads  bool
	writes bool
	closed bool
}

func (h *fifoHandle) Close(force bool) error {
	if h.closed {
		return errno.EBADF
	}
	h.closed = true
	h.n.pipe.detach(h.reads, h.writes)
	return nil
}

func (h *fifoHandle) Read(p []byte, off int64) (int, error) {
	if !h.reads {
		return 0, errno.EACCES
	}
	return h.n.pipe.read(p)
}

func (h *fifoHandle) Write(p []byte, off int64) (int, error) {
	if !h.writes {
		return 0, errno.EACCES
	}
	return h.n.pipe.write(p)
}

func (h *fifoHandle) Ioctl(request uint, arg interface{}) error {
	return errno.ENOSYS
}

func (h *fifoHandle) Flush() error {
	return nil
}

func (h *fifoHandle) Fstat(st *fs.FileInfo) error {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	fillInfo(h.n, st)
	st.Size = int64(h.n.pipe.q.Len())
	return nil
}
