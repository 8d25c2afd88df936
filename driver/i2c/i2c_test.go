// Test suite for the I2C master driver
package i2c

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

var nextMinor int

// newPort wires a fresh simulated bus to a fresh driver instance.
func newPort(t *testing.T) (*SimBus, *Driver, driver.Handle) {
	t.Helper()
	nextMinor++
	minor := nextMinor
	bus := NewSimBus()
	AttachPort(minor, bus)
	d := &Driver{}
	h, err := d.Init(0, minor)
	require.NoError(t, err)
	require.NoError(t, d.Open(h, 0))
	return bus, d, h
}

func setSlave(t *testing.T, d *Driver, h driver.Handle, addr byte) {
	t.Helper()
	require.NoError(t, d.Ioctl(h, IoctlSetSlaveAddr, addr))
}

func TestInitWithoutHardware(t *testing.T) {
	d := &Driver{}
	_, err := d.Init(0, 9999)
	assert.Equal(t, errno.ENXIO, err)
}

// Register read scenario: slave 0x68, register 0x00 holds 0x80. An
// empty write selects the register, the one byte read returns it, and
// the bus runs start / write-address / sub-address / repeated start /
// read-address / data / stop.
func TestRegisterRead(t *testing.T) {
	bus, d, h := newPort(t)
	slave := bus.AddSlave(0x68)
	slave.Regs[0x00] = 0x80
	setSlave(t, d, h, 0x68)

	n, err := d.Write(h, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	bus.ClearTrace()
	buf := make([]byte, 1)
	n, err = d.Read(h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x80), buf[0])

	assert.Equal(t, []string{
		"start",
		"addr:0xd0",
		"subaddr:0x00",
		"restart",
		"addr:0xd1",
		"nack",
		"read:0x80",
		"stop",
	}, bus.Trace())
	assert.True(t, bus.Idle())
}

func TestWriteTransaction(t *testing.T) {
	bus, d, h := newPort(t)
	slave := bus.AddSlave(0x50)
	setSlave(t, d, h, 0x50)

	n, err := d.Write(h, []byte{0xaa, 0xbb}, 0x10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, byte(0xaa), slave.Regs[0x10])
	assert.Equal(t, byte(0xbb), slave.Regs[0x11])
	assert.Equal(t, []string{
		"start",
		"addr:0xa0",
		"subaddr:0x10",
		"data:0xaa",
		"data:0xbb",
		"stop",
	}, bus.Trace())
	assert.True(t, bus.Idle())
}

func TestTwoByteReadUsesPos(t *testing.T) {
	bus, d, h := newPort(t)
	slave := bus.AddSlave(0x68)
	slave.Regs[0x04] = 0x12
	slave.Regs[0x05] = 0x34
	setSlave(t, d, h, 0x68)

	buf := make([]byte, 2)
	_, err := d.Read(h, buf, 0x04)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, buf)
	assert.Contains(t, bus.Trace(), "pos")
	assert.True(t, bus.Idle())
}

func TestLongReadPolled(t *testing.T) {
	bus, d, h := newPort(t)
	slave := bus.AddSlave(0x68)
	for i := 0; i < 8; i++ {
		slave.Regs[i] = byte(0x10 + i)
	}
	setSlave(t, d, h, 0x68)

	buf := make([]byte, 8)
	_, err := d.Read(h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17}, buf)
	// The last byte is NACKed before the stop.
	assert.Contains(t, bus.Trace(), "nack")
	assert.True(t, bus.Idle())
}

func TestLongReadDMA(t *testing.T) {
	bus, d, h := newPort(t)
	slave := bus.AddSlave(0x68)
	for i := 0; i < 4; i++ {
		slave.Regs[i] = byte(i + 1)
	}
	setSlave(t, d, h, 0x68)
	require.NoError(t, d.Ioctl(h, IoctlSetDMA, true))

	buf := make([]byte, 4)
	_, err := d.Read(h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
	assert.Contains(t, bus.Trace(), "dma:4")
	assert.True(t, bus.Idle())
}

// Addressing an absent slave classifies as ACK failure and leaves the
// bus idle.
func TestAckFailureRecovers(t *testing.T) {
	bus, d, h := newPort(t)
	setSlave(t, d, h, 0x42)

	_, err := d.Write(h, []byte{1}, 0)
	assert.Equal(t, errno.EIO, err)

	var status BusError
	require.NoError(t, d.Ioctl(h, IoctlGetStatus, &status))
	assert.Equal(t, ErrAckFailure, status)
	assert.True(t, bus.Idle(), "bus must return to idle after a NACK")
}

func TestBusErrorClassification(t *testing.T) {
	bus, d, h := newPort(t)
	bus.AddSlave(0x68)
	setSlave(t, d, h, 0x68)
	bus.FailWith = StatusBERR

	_, err := d.Write(h, []byte{1}, 0)
	assert.Equal(t, errno.EIO, err)

	var status BusError
	require.NoError(t, d.Ioctl(h, IoctlGetStatus, &status))
	assert.Equal(t, ErrBusError, status)
}

func TestTimeoutClassification(t *testing.T) {
	// deadBus never raises any flag.
	bus, d, h := newPort(t)
	_ = bus
	dead := &deadHw{}
	p := h.(*port)
	p.hw = dead

	start := time.Now()
	_, err := d.Write(h, []byte{1}, 0)
	assert.Equal(t, errno.ETIME, err)
	assert.GreaterOrEqual(t, time.Since(start), eventTimeout)

	var status BusError
	require.NoError(t, d.Ioctl(h, IoctlGetStatus, &status))
	assert.Equal(t, ErrTimeout, status)
	assert.True(t, dead.reinit, "a timed out port is re-initialized")
}

// deadHw is a silent bus: no event ever raises.
type deadHw struct {
	reinit bool
}

func (d *deadHw) Start()                 {}
func (d *deadHw) Stop()                  {}
func (d *deadHw) WriteData(b byte)       {}
func (d *deadHw) ReadData() byte         { return 0 }
func (d *deadHw) Status() Status         { return 0 }
func (d *deadHw) ClearStatus()           {}
func (d *deadHw) ClearAddr()             {}
func (d *deadHw) SetAck(on bool)         {}
func (d *deadHw) SetPos(on bool)         {}
func (d *deadHw) Reinit(sclHz uint32)    { d.reinit = true }
func (d *deadHw) ReadDMA(dst []byte) bool { return false }
func (d *deadHw) OnEvent(fn func())      {}

func TestPortOwnership(t *testing.T) {
	bus, d, h := newPort(t)
	bus.AddSlave(0x68)
	setSlave(t, d, h, 0x68)

	// A second opener from another task is rejected.
	res := make(chan error, 2)
	_, err := kernel.TaskCreate("intruder", 0, func() {
		res <- d.Open(h, 0)
		buf := make([]byte, 1)
		_, rerr := d.Read(h, buf, 0)
		res <- rerr
	})
	require.NoError(t, err)
	assert.Equal(t, errno.EBUSY, <-res)
	assert.Equal(t, errno.EACCES, <-res)

	// After close the port is free again.
	require.NoError(t, d.Close(h, false))
	_, err = kernel.TaskCreate("taker", 0, func() {
		res <- d.Open(h, 0)
	})
	require.NoError(t, err)
	assert.NoError(t, <-res)
	require.NoError(t, d.Close(h, true))
}

func TestIoctlRoundTrips(t *testing.T) {
	_, d, h := newPort(t)

	setSlave(t, d, h, 0x33)
	var addr byte
	require.NoError(t, d.Ioctl(h, IoctlGetSlaveAddr, &addr))
	assert.Equal(t, byte(0x33), addr)

	require.NoError(t, d.Ioctl(h, IoctlSetSCLFreq, uint32(400000)))
	var hz uint32
	require.NoError(t, d.Ioctl(h, IoctlGetSCLFreq, &hz))
	assert.Equal(t, uint32(400000), hz)

	assert.Equal(t, errno.EINVAL, d.Ioctl(h, IoctlSetSCLFreq, "fast"))
	assert.Equal(t, errno.ENOSYS, d.Ioctl(h, 0xffff, nil))
}

func TestReleaseBusyPort(t *testing.T) {
	_, d, h := newPort(t)
	assert.Equal(t, errno.EBUSY, d.Release(h))
	require.NoError(t, d.Close(h, false))
	require.NoError(t, d.Release(h))
}
