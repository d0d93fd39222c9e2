package can

import "fmt"

// Error wraps a raw CAN bus error bitmask. The meaning of the bits is owned
// by whoever produced the code; see DescribeError for the usual mapping.
type Error struct {
	code uint64
}

// NewError wraps code.
func NewError(code uint64) Error { return Error{code: code} }

// Erno returns the raw error code.
func (e Error) Erno() uint64 { return e.code }

func (e Error) String() string {
	return fmt.Sprintf("%s (0x%X)", DescribeError(e.code).Name(), e.code)
}

// ErrorKind is the presentation category of an error code.
type ErrorKind int

const (
	ErrorKindBit ErrorKind = iota
	ErrorKindStuff
	ErrorKindForm
	ErrorKindAck
	ErrorKindCRC
	ErrorKindInternal
)

var errorKinds = [...]struct{ name, description string }{
	ErrorKindBit:      {"CAN Bit Error", "a transmitted bit differed from the level monitored on the bus"},
	ErrorKindStuff:    {"CAN Bit Stuffing Error", "more than five consecutive bits of equal level were received"},
	ErrorKindForm:     {"CAN Form Error", "a fixed-form bit field contained an illegal bit"},
	ErrorKindAck:      {"CAN ACK Error", "the transmitter saw no dominant bit in the ACK slot"},
	ErrorKindCRC:      {"CAN CRC Error", "the received CRC did not match the computed one"},
	ErrorKindInternal: {"Internal Error", "the error was not caused by a bus-level fault"},
}

// Name returns a short title for the kind.
func (k ErrorKind) Name() string {
	if k < 0 || int(k) >= len(errorKinds) {
		return errorKinds[ErrorKindInternal].name
	}
	return errorKinds[k].name
}

// Description returns a one-line explanation of the kind.
func (k ErrorKind) Description() string {
	if k < 0 || int(k) >= len(errorKinds) {
		return errorKinds[ErrorKindInternal].description
	}
	return errorKinds[k].description
}

func (k ErrorKind) String() string { return k.Name() }

// DescribeError classifies code by its lowest set category bit: bit 0 bit
// error, bit 1 stuffing, bit 2 form, bit 3 ACK, bit 4 CRC. Anything else is
// internal.
func DescribeError(code uint64) ErrorKind {
	for k := ErrorKindBit; k < ErrorKindInternal; k++ {
		if code&(1<<uint(k)) != 0 {
			return k
		}
	}
	return ErrorKindInternal
}
