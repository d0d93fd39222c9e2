package can

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	ecan "go.einride.tech/can"
)

// Bits of the packed identifier field.
const (
	IDEFlag        = 0x80000000
	RTRFlag        = 0x40000000
	ExtendedIDMask = 0x1FFFFFFF
	StandardIDMask = 0x7FF
)

// MaxDLC is the largest data length code of a classic CAN frame.
const MaxDLC = 8

// ErrInvalidFrame marks frames rejected by Validate.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is a classic CAN frame in packed form.
//
// The identifier field keeps the 29-bit address in its low bits, the IDE flag
// in bit 31 and the RTR flag in bit 30. The payload is an 8-byte little-endian
// word: its least significant byte is the first data byte on the bus.
// Frames are plain values; nothing mutates them after NewFrame.
type Frame struct {
	id   uint32
	dlc  uint8
	data uint64
}

// NewFrame packs a frame. The id must fit in the low 29 bits, otherwise the
// flag bits are corrupted; dlc is stored as given. No validation is done.
func NewFrame(id uint32, ide, rtr bool, dlc uint8, data uint64) Frame {
	if ide {
		id |= IDEFlag
	}
	if rtr {
		id |= RTRFlag
	}
	return Frame{id: id, dlc: dlc, data: data}
}

// NewFrameFromBytes packs a frame whose payload is given byte by byte,
// byte 0 being the first byte on the bus.
func NewFrameFromBytes(id uint32, ide, rtr bool, dlc uint8, data [8]byte) Frame {
	return NewFrame(id, ide, rtr, dlc, binary.LittleEndian.Uint64(data[:]))
}

// Key returns the raw packed identifier including flags. It is meant for
// grouping frames, not as an address.
func (f Frame) Key() uint32 { return f.id }

// ID returns the 29-bit identifier without flags.
func (f Frame) ID() uint32 { return f.id & ExtendedIDMask }

// IDE reports whether the frame uses the extended identifier format.
func (f Frame) IDE() bool { return f.id&IDEFlag != 0 }

// RTR reports whether the frame is a remote transmission request.
func (f Frame) RTR() bool { return f.id&RTRFlag != 0 }

// DLC returns the stored data length code.
func (f Frame) DLC() uint8 { return f.dlc }

// DataU64 returns the payload as packed.
func (f Frame) DataU64() uint64 { return f.data }

// Bytes returns the payload as bytes in bus order: index 0 holds the least
// significant byte of DataU64 on every host.
func (f Frame) Bytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], f.data)
	return b
}

// Validate checks the frame against classic CAN limits.
func (f Frame) Validate() error {
	if f.id&^(IDEFlag|RTRFlag|ExtendedIDMask) != 0 {
		return errors.Wrapf(ErrInvalidFrame, "identifier 0x%X overlaps reserved bit 29", f.id)
	}
	if !f.IDE() && f.ID() > StandardIDMask {
		return errors.Wrapf(ErrInvalidFrame, "standard identifier 0x%X exceeds 11 bits", f.ID())
	}
	if f.dlc > MaxDLC {
		return errors.Wrapf(ErrInvalidFrame, "dlc %d exceeds %d", f.dlc, MaxDLC)
	}
	return nil
}

// ToEinride converts the frame into a go.einride.tech/can frame. Length is
// clamped to MaxDLC since einride slices the payload by it.
func (f Frame) ToEinride() ecan.Frame {
	return ecan.Frame{
		ID:         f.ID(),
		Length:     min(f.dlc, MaxDLC),
		Data:       ecan.Data(f.Bytes()),
		IsRemote:   f.RTR(),
		IsExtended: f.IDE(),
	}
}

// FrameFromEinride packs a go.einride.tech/can frame.
func FrameFromEinride(ef ecan.Frame) Frame {
	return NewFrameFromBytes(ef.ID, ef.IsExtended, ef.IsRemote, ef.Length, [8]byte(ef.Data))
}

// String formats the frame in candump notation, e.g. 123#0102. At most
// MaxDLC payload bytes are printed.
func (f Frame) String() string {
	return f.ToEinride().String()
}
