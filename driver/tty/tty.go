// Package tty exposes the terminal driver's ioctl surface. The line
// discipline itself is out of the kernel core; only the request
// numbers and the stub driver are provided so device nodes can be
// created and configured ahead of a real terminal implementation.
package tty

import (
	"io"
	"sync"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Register with the driver framework
func init() {
	driver.Register(&driver.RegInfo{
		Name:        "tty",
		Description: "Virtual terminal (ioctl surface only).",
		Drv:         &Driver{},
	})
}

// Ioctl requests.
const (
	IoctlGetCurrentTTY uint = 0x7400 + iota
	IoctlSwitchTTY
	IoctlClearSCR
	IoctlEchoOn
	IoctlEchoOff
)

type term struct {
	minor int

	mu   sync.Mutex
	echo bool
}

// Driver implements the driver contract.
type Driver struct{}

func (d *Driver) Init(major, minor int) (driver.Handle, error) {
	return &term{minor: minor, echo: true}, nil
}

func (d *Driver) Release(h driver.Handle) error {
	return nil
}

func (d *Driver) Open(h driver.Handle, flags int) error {
	return nil
}

func (d *Driver) Close(h driver.Handle, force bool) error {
	return nil
}

// Write discards; there is no output service task in the core.
func (d *Driver) Write(h driver.Handle, src []byte, seek int64) (int, error) {
	return len(src), nil
}

// Read reports end of input; there is no input service task in the
// core.
func (d *Driver) Read(h driver.Handle, dst []byte, seek int64) (int, error) {
	return 0, io.EOF
}

func (d *Driver) Ioctl(h driver.Handle, request uint, arg interface{}) error {
	t := h.(*term)
	switch request {
	case IoctlGetCurrentTTY:
		out, ok := arg.(*int)
		if !ok {
			return errno.EINVAL
		}
		*out = t.minor
	case IoctlSwitchTTY, IoctlClearSCR:
		// Accepted; acted on by the terminal service when present.
	case IoctlEchoOn:
		t.mu.Lock()
		t.echo = true
		t.mu.Unlock()
	case IoctlEchoOff:
		t.mu.Lock()
		t.echo = false
		t.mu.Unlock()
	default:
		return errno.ENOSYS
	}
	return nil
}

func (d *Driver) Flush(h driver.Handle) error {
	return nil
}

func (d *Driver) Stat(h driver.Handle, st *fs.FileInfo) error {
	st.Type = fs.TypeDevice
	st.Mode = 0666
	st.Dev = fs.DevNode{Driver: "tty", Minor: h.(*term).minor}
	return nil
}

var _ driver.Driver = (*Driver)(nil)
