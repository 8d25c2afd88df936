package i2c

import (
	"time"

	"github.com/jerryzhang126/dnx-rtos/lib/printk"
)

// waitFlag waits for any flag in mask to raise. Error flags abort the
// wait with their classification; a silent bus times out. The event
// semaphore is signalled from the interrupt path; the wait is cut into
// short slices so a lost interrupt degrades to polling.
func (p *port) waitFlag(mask Status) BusError {
	deadline := time.Now().Add(eventTimeout)
	for {
		st := p.hw.Status()
		if st&statusErrorMask != 0 {
			return classify(st)
		}
		if st&mask != 0 {
			return ErrNone
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		_ = p.ev.Wait(eventPoll)
	}
}

// abort forces the bus back to idle after a failed transaction: STOP,
// status reset, peripheral re-init. The classification is latched for
// the status ioctl.
func (p *port) abort(e BusError) BusError {
	p.hw.Stop()
	p.hw.ClearStatus()
	p.mu.Lock()
	sclHz := p.sclHz
	p.lastErr = e
	p.mu.Unlock()
	p.hw.Reinit(sclHz)
	printk.Debugf(nil, "i2c%d: transaction aborted: %v", p.minor, e)
	return e
}

// start issues a (repeated) START and addresses the slave. read
// selects the transfer direction bit.
func (p *port) start(read bool) BusError {
	p.hw.Start()
	if e := p.waitFlag(StatusSB); e != ErrNone {
		return e
	}
	p.mu.Lock()
	addr := p.slaveAddr << 1
	p.mu.Unlock()
	if read {
		addr |= 1
	}
	p.hw.WriteData(addr)
	if e := p.waitFlag(StatusADDR); e != ErrNone {
		return e
	}
	return ErrNone
}

// write runs the write transaction: START, address, sub-address, the
// payload, STOP.
func (p *port) write(src []byte, subAddr byte) BusError {
	if e := p.start(false); e != ErrNone {
		return p.abort(e)
	}
	p.hw.ClearAddr()
	p.hw.WriteData(subAddr)
	if e := p.waitFlag(StatusTXE | StatusBTF); e != ErrNone {
		return p.abort(e)
	}
	for _, b := range src {
		if e := p.waitFlag(StatusTXE); e != ErrNone {
			return p.abort(e)
		}
		p.hw.WriteData(b)
	}
	if len(src) > 0 {
		if e := p.waitFlag(StatusBTF); e != ErrNone {
			return p.abort(e)
		}
	}
	p.hw.Stop()
	p.mu.Lock()
	p.lastErr = ErrNone
	p.mu.Unlock()
	return ErrNone
}

// read runs the read transaction: the sub-address is sent in write
// direction, then a repeated START re-addresses the slave for reading.
// The ACK/NACK/STOP choreography depends on the length: one byte needs
// ACK cleared before the address flag, two use the POS sequence, three
// or more NACK the last byte on the fly (or hand the transfer to DMA).
func (p *port) read(dst []byte, subAddr byte) BusError {
	if len(dst) == 0 {
		return ErrNone
	}
	if e := p.start(false); e != ErrNone {
		return p.abort(e)
	}
	p.hw.ClearAddr()
	p.hw.WriteData(subAddr)
	if e := p.waitFlag(StatusTXE | StatusBTF); e != ErrNone {
		return p.abort(e)
	}

	if e := p.start(true); e != ErrNone {
		return p.abort(e)
	}

	p.mu.Lock()
	useDMA := p.useDMA
	p.mu.Unlock()

	switch n := len(dst); {
	case n == 1:
		p.hw.SetAck(false)
		p.hw.ClearAddr()
		p.hw.Stop()
		if e := p.waitFlag(StatusRXNE); e != ErrNone {
			return p.abort(e)
		}
		dst[0] = p.hw.ReadData()
	case n == 2:
		p.hw.SetPos(true)
		p.hw.ClearAddr()
		p.hw.SetAck(false)
		if e := p.waitFlag(StatusBTF); e != ErrNone {
			p.hw.SetPos(false)
			return p.abort(e)
		}
		p.hw.Stop()
		dst[0] = p.hw.ReadData()
		dst[1] = p.hw.ReadData()
		p.hw.SetPos(false)
	case useDMA && p.hw.ReadDMA(dst):
		p.hw.SetAck(true)
		p.hw.ClearAddr()
		if e := p.waitFlag(StatusBTF); e != ErrNone {
			return p.abort(e)
		}
		p.hw.Stop()
	default:
		p.hw.SetAck(true)
		p.hw.ClearAddr()
		for i := 0; i < n; i++ {
			if i == n-2 {
				p.hw.SetAck(false)
			}
			if i == n-1 {
				p.hw.Stop()
			}
			if e := p.waitFlag(StatusRXNE); e != ErrNone {
				return p.abort(e)
			}
			dst[i] = p.hw.ReadData()
		}
	}

	p.hw.SetAck(true)
	p.mu.Lock()
	p.lastErr = ErrNone
	p.mu.Unlock()
	return ErrNone
}
