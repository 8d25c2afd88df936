package i2c

import (
	"fmt"
	"sync"
)

// SimSlave is a register-file slave on a simulated bus, the shape of a
// typical RTC or sensor: a write selects the register pointer, reads
// auto-increment it.
type SimSlave struct {
	Regs [256]byte
	ptr  byte
}

// SimBus simulates one I²C port with its slaves. It implements the
// hardware interface at register level and records every bus event so
// tests can assert the exact transaction choreography.
type SimBus struct {
	mu     sync.Mutex
	slaves map[byte]*SimSlave
	notify func()

	status    Status
	started   bool
	addrPhase bool
	readMode  bool
	active    *SimSlave
	subAddr   bool // next written byte selects the register pointer
	ack       bool
	pos       bool
	dmaDone   bool
	// A STOP issued while received bytes are still in the data
	// register completes only after the master drains them, as on the
	// real peripheral.
	stopPending  bool
	readsToDrain int
	trace        []string

	// Fault injection for tests.
	FailWith Status
}

// NewSimBus creates an idle simulated bus.
func NewSimBus() *SimBus {
	return &SimBus{
		slaves: make(map[byte]*SimSlave),
		ack:    true,
	}
}

// AddSlave puts a slave on the bus at the 7-bit address.
func (b *SimBus) AddSlave(addr byte) *SimSlave {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &SimSlave{}
	b.slaves[addr] = s
	return s
}

// Trace returns the recorded bus events.
func (b *SimBus) Trace() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.trace...)
}

// ClearTrace drops the recorded events.
func (b *SimBus) ClearTrace() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trace = nil
}

func (b *SimBus) record(format string, a ...interface{}) {
	b.trace = append(b.trace, fmt.Sprintf(format, a...))
}

func (b *SimBus) raise() {
	if b.notify != nil {
		b.notify()
	}
}

// Start issues a START or repeated START condition.
func (b *SimBus) Start() {
	b.mu.Lock()
	if b.started {
		b.record("restart")
	} else {
		b.record("start")
	}
	b.started = true
	b.addrPhase = true
	b.status |= StatusSB
	b.mu.Unlock()
	b.raise()
}

// Stop issues a STOP condition. In read mode with bytes still to be
// drained from the data register the condition takes effect after the
// last read.
func (b *SimBus) Stop() {
	b.mu.Lock()
	if b.started && b.readMode && !b.dmaDone && b.status&StatusRXNE != 0 {
		b.stopPending = true
		b.readsToDrain = 1
		if b.pos {
			b.readsToDrain = 2
		}
		b.mu.Unlock()
		b.raise()
		return
	}
	b.idleLocked()
	b.mu.Unlock()
	b.raise()
}

// idleLocked records the STOP and returns the bus to idle. Caller
// holds the lock.
func (b *SimBus) idleLocked() {
	if b.started {
		b.record("stop")
	}
	b.started = false
	b.addrPhase = false
	b.readMode = false
	b.active = nil
	b.stopPending = false
	b.readsToDrain = 0
	b.dmaDone = false
	b.status &= statusErrorMask
}

// WriteData shifts one byte out: the slave address in the address
// phase, the register pointer or register data afterwards.
func (b *SimBus) WriteData(v byte) {
	b.mu.Lock()
	if b.FailWith != 0 {
		b.status |= b.FailWith
		b.mu.Unlock()
		b.raise()
		return
	}
	if b.addrPhase {
		b.status &^= StatusSB
		b.addrPhase = false
		b.readMode = v&1 != 0
		slave := b.slaves[v>>1]
		b.record("addr:0x%02x", v)
		if slave == nil {
			b.status |= StatusAF
			b.mu.Unlock()
			b.raise()
			return
		}
		b.active = slave
		b.subAddr = !b.readMode
		b.status |= StatusADDR
		if !b.readMode {
			b.status |= StatusTXE
		}
		b.mu.Unlock()
		b.raise()
		return
	}
	if b.active != nil && !b.readMode {
		if b.subAddr {
			b.active.ptr = v
			b.subAddr = false
			b.record("subaddr:0x%02x", v)
		} else {
			b.active.Regs[b.active.ptr] = v
			b.active.ptr++
			b.record("data:0x%02x", v)
		}
		b.status |= StatusTXE | StatusBTF
	}
	b.mu.Unlock()
	b.raise()
}

// ClearAddr clears the address flag; in read mode the first byte
// starts shifting in.
func (b *SimBus) ClearAddr() {
	b.mu.Lock()
	b.status &^= StatusADDR
	if b.readMode && b.active != nil {
		b.status |= StatusRXNE | StatusBTF
	}
	b.mu.Unlock()
	b.raise()
}

// ReadData shifts one byte in from the active slave. Draining the
// last byte completes a pending STOP.
func (b *SimBus) ReadData() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil || !b.readMode {
		return 0
	}
	v := b.active.Regs[b.active.ptr]
	b.active.ptr++
	b.record("read:0x%02x", v)
	b.status |= StatusRXNE | StatusBTF
	if b.stopPending {
		b.readsToDrain--
		if b.readsToDrain <= 0 {
			b.idleLocked()
		}
	}
	return v
}

// Status returns the event and error flags.
func (b *SimBus) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// ClearStatus clears the error flags.
func (b *SimBus) ClearStatus() {
	b.mu.Lock()
	b.status &^= statusErrorMask
	b.mu.Unlock()
}

// SetAck drives the acknowledge enable bit.
func (b *SimBus) SetAck(on bool) {
	b.mu.Lock()
	b.ack = on
	if !on {
		b.record("nack")
	}
	b.mu.Unlock()
}

// SetPos drives the POS bit used by two byte reads.
func (b *SimBus) SetPos(on bool) {
	b.mu.Lock()
	b.pos = on
	if on {
		b.record("pos")
	}
	b.mu.Unlock()
}

// Reinit resets the simulated peripheral.
func (b *SimBus) Reinit(sclHz uint32) {
	b.mu.Lock()
	b.status = 0
	b.started = false
	b.addrPhase = false
	b.readMode = false
	b.active = nil
	b.ack = true
	b.pos = false
	b.dmaDone = false
	b.stopPending = false
	b.readsToDrain = 0
	b.mu.Unlock()
}

// ReadDMA copies the whole transfer from the slave in one step, as the
// DMA controller would, and finishes with BTF.
func (b *SimBus) ReadDMA(dst []byte) bool {
	b.mu.Lock()
	if b.active == nil || !b.readMode {
		b.mu.Unlock()
		return false
	}
	for i := range dst {
		dst[i] = b.active.Regs[b.active.ptr]
		b.active.ptr++
	}
	b.record("dma:%d", len(dst))
	b.status |= StatusBTF
	b.dmaDone = true
	b.mu.Unlock()
	b.raise()
	return true
}

// OnEvent registers the interrupt callback.
func (b *SimBus) OnEvent(fn func()) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Idle reports whether the bus returned to the idle state.
func (b *SimBus) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.started && b.status&statusErrorMask == 0
}

var _ Hw = (*SimBus)(nil)
