// Package i2c is the I²C master driver. One port is one minor; a port
// is owned by at most one task between open and close. Transactions
// run a start/address/transfer/stop state machine over the register
// interface, waiting on an event semaphore the interrupt path signals,
// and classify every failure before forcing the bus back to idle.
package i2c

import (
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
)

// Register with the driver framework
func init() {
	driver.Register(&driver.RegInfo{
		Name:        "i2c",
		Description: "I2C master.",
		Drv:         &Driver{},
	})
}

// Ioctl requests.
const (
	IoctlSetSlaveAddr uint = 0x6900 + iota
	IoctlGetSlaveAddr
	IoctlSetSCLFreq
	IoctlGetSCLFreq
	IoctlGetStatus
	IoctlSetDMA
)

// eventTimeout bounds every wait for a bus event.
const eventTimeout = 100 * time.Millisecond

// eventPoll bounds one semaphore wait so a lost interrupt degrades to
// polling instead of hanging the transaction.
const eventPoll = time.Millisecond

const defaultSCLHz = 100000

// Hw is the register-level access to one port. The interrupt service
// routine of the peripheral calls the function registered with
// OnEvent.
type Hw interface {
	Start()
	Stop()
	WriteData(b byte)
	ReadData() byte
	Status() Status
	ClearStatus()
	ClearAddr()
	SetAck(on bool)
	SetPos(on bool)
	Reinit(sclHz uint32)
	// ReadDMA starts a DMA reception into dst and reports whether the
	// port supports it; completion raises BTF.
	ReadDMA(dst []byte) bool
	OnEvent(fn func())
}

var hwPorts struct {
	mu    sync.Mutex
	ports map[int]Hw
}

// AttachPort binds hardware to a minor number. The board support code
// calls it before device nodes are created.
func AttachPort(minor int, hw Hw) {
	hwPorts.mu.Lock()
	defer hwPorts.mu.Unlock()
	if hwPorts.ports == nil {
		hwPorts.ports = make(map[int]Hw)
	}
	hwPorts.ports[minor] = hw
}

// port is the per-port driver state.
type port struct {
	hw    Hw
	minor int
	ev    *kernel.Semaphore

	mu        sync.Mutex
	opened    bool
	owner     *kernel.Task
	slaveAddr byte
	sclHz     uint32
	useDMA    bool
	lastErr   BusError
}

// Driver implements the driver contract.
type Driver struct{}

// Init binds the driver to the hardware attached at the minor.
func (d *Driver) Init(major, minor int) (driver.Handle, error) {
	hwPorts.mu.Lock()
	hw := hwPorts.ports[minor]
	hwPorts.mu.Unlock()
	if hw == nil {
		return nil, errno.ENXIO
	}
	p := &port{
		hw:    hw,
		minor: minor,
		ev:    kernel.NewSemaphore(false),
		sclHz: defaultSCLHz,
	}
	hw.OnEvent(func() {
		p.ev.SignalISR()
	})
	hw.Reinit(p.sclHz)
	printk.Debugf(nil, "i2c%d: initialized", minor)
	return p, nil
}

// Release shuts the port down.
func (d *Driver) Release(h driver.Handle) error {
	p := h.(*port)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return errno.EBUSY
	}
	p.hw.Stop()
	return nil
}

// Open records the caller as the port owner. A second opener gets
// EBUSY until the owner closes.
func (d *Driver) Open(h driver.Handle, flags int) error {
	p := h.(*port)
	caller := kernel.CurrentTask()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened && p.owner != caller {
		return errno.EBUSY
	}
	p.opened = true
	p.owner = caller
	return nil
}

// Close releases the ownership slot. force bypasses the owner check
// for teardown paths.
func (d *Driver) Close(h driver.Handle, force bool) error {
	p := h.(*port)
	caller := kernel.CurrentTask()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !force && p.opened && p.owner != caller {
		return errno.EACCES
	}
	p.opened = false
	p.owner = nil
	return nil
}

// checkOwner rejects operations from tasks other than the opener.
func (p *port) checkOwner() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened {
		return errno.EBADF
	}
	if p.owner != kernel.CurrentTask() {
		return errno.EACCES
	}
	return nil
}

// Write sends src to the slave's register at seek.
func (d *Driver) Write(h driver.Handle, src []byte, seek int64) (int, error) {
	p := h.(*port)
	if err := p.checkOwner(); err != nil {
		return 0, err
	}
	if e := p.write(src, byte(seek)); e != ErrNone {
		return 0, e.Errno()
	}
	return len(src), nil
}

// Read fills dst from the slave's register at seek.
func (d *Driver) Read(h driver.Handle, dst []byte, seek int64) (int, error) {
	p := h.(*port)
	if err := p.checkOwner(); err != nil {
		return 0, err
	}
	if e := p.read(dst, byte(seek)); e != ErrNone {
		return 0, e.Errno()
	}
	return len(dst), nil
}

// Ioctl handles the port configuration requests.
func (d *Driver) Ioctl(h driver.Handle, request uint, arg interface{}) error {
	p := h.(*port)
	if request == IoctlGetStatus {
		out, ok := arg.(*BusError)
		if !ok {
			return errno.EINVAL
		}
		p.mu.Lock()
		*out = p.lastErr
		p.mu.Unlock()
		return nil
	}
	if err := p.checkOwner(); err != nil {
		return err
	}
	switch request {
	case IoctlSetSlaveAddr:
		addr, ok := arg.(byte)
		if !ok {
			return errno.EINVAL
		}
		p.mu.Lock()
		p.slaveAddr = addr
		p.mu.Unlock()
	case IoctlGetSlaveAddr:
		out, ok := arg.(*byte)
		if !ok {
			return errno.EINVAL
		}
		p.mu.Lock()
		*out = p.slaveAddr
		p.mu.Unlock()
	case IoctlSetSCLFreq:
		hz, ok := arg.(uint32)
		if !ok || hz == 0 {
			return errno.EINVAL
		}
		p.mu.Lock()
		p.sclHz = hz
		p.mu.Unlock()
		p.hw.Reinit(hz)
	case IoctlGetSCLFreq:
		out, ok := arg.(*uint32)
		if !ok {
			return errno.EINVAL
		}
		p.mu.Lock()
		*out = p.sclHz
		p.mu.Unlock()
	case IoctlSetDMA:
		on, ok := arg.(bool)
		if !ok {
			return errno.EINVAL
		}
		p.mu.Lock()
		p.useDMA = on
		p.mu.Unlock()
	default:
		return errno.ENOSYS
	}
	return nil
}

// Flush is a no-op; transactions are synchronous.
func (d *Driver) Flush(h driver.Handle) error {
	return nil
}

// Stat reports the port as a character device.
func (d *Driver) Stat(h driver.Handle, st *fs.FileInfo) error {
	p := h.(*port)
	st.Type = fs.TypeDevice
	st.Mode = 0666
	st.Dev = fs.DevNode{Driver: "i2c", Minor: p.minor}
	return nil
}

var _ driver.Driver = (*Driver)(nil)
