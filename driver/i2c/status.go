package i2c

import "github.com/jerryzhang126/dnx-rtos/lib/errno"

// Status mirrors the event and error flags of the peripheral status
// register.
type Status uint16

// Event flags.
const (
	StatusSB   Status = 1 << 0 // start bit sent
	StatusADDR Status = 1 << 1 // address sent and acknowledged
	StatusBTF  Status = 1 << 2 // byte transfer finished
	StatusRXNE Status = 1 << 6 // receive register not empty
	StatusTXE  Status = 1 << 7 // transmit register empty
)

// Error flags.
const (
	StatusBERR Status = 1 << 8  // bus error
	StatusARLO Status = 1 << 9  // arbitration lost
	StatusAF   Status = 1 << 10 // acknowledge failure
	StatusOVR  Status = 1 << 11 // overrun
)

const statusErrorMask = StatusOVR | StatusAF | StatusARLO | StatusBERR

// BusError classifies a failed transaction. It is latched in the port
// record for the status ioctl and mapped to an errno on the way out.
type BusError int

// Transaction error classes.
const (
	ErrNone BusError = iota
	ErrTimeout
	ErrOverrun
	ErrAckFailure
	ErrArbLost
	ErrBusError
	ErrGeneric
)

func (e BusError) String() string {
	switch e {
	case ErrNone:
		return "ok"
	case ErrTimeout:
		return "timeout"
	case ErrOverrun:
		return "overrun"
	case ErrAckFailure:
		return "ack failure"
	case ErrArbLost:
		return "arbitration lost"
	case ErrBusError:
		return "bus error"
	}
	return "generic error"
}

// Errno maps the classification to the error number surfaced by the
// VFS.
func (e BusError) Errno() errno.Error {
	switch e {
	case ErrNone:
		return errno.OK
	case ErrTimeout:
		return errno.ETIME
	default:
		return errno.EIO
	}
}

// classify picks the error class for a status register showing error
// flags.
func classify(st Status) BusError {
	switch {
	case st&StatusOVR != 0:
		return ErrOverrun
	case st&StatusAF != 0:
		return ErrAckFailure
	case st&StatusARLO != 0:
		return ErrArbLost
	case st&StatusBERR != 0:
		return ErrBusError
	}
	return ErrGeneric
}
