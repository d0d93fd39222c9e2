package pcapng

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/BIwashi/canframe/pkg/can"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN.
// ref: https://www.tcpdump.org/linktypes.html
const LinkTypeCANSocketCAN layers.LinkType = 227

const (
	idFlagError   = 0x20000000
	canFrameBytes = 16
)

var (
	ErrUnsupportedLinkType = errors.New("unsupported link type")
	ErrShortFrame          = errors.New("data too short for CAN frame")
)

// Reader reads CAN frames from a PCAPNG file
type Reader struct {
	reader      *pcapgo.NgReader
	linkType    layers.LinkType
	packetCount uint64
	base        time.Time
}

// Option configures a Reader.
type Option func(*Reader)

// WithBase fixes the reference instant timestamps are measured from. By
// default the capture time of the first packet is used.
func WithBase(t time.Time) Option { return func(r *Reader) { r.base = t } }

// NewReader creates a new PCAPNG reader
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	ngReader, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pcapng reader")
	}

	rd := &Reader{
		reader:   ngReader,
		linkType: ngReader.LinkType(),
	}
	for _, o := range opts {
		o(rd)
	}
	return rd, nil
}

// LinkType returns the link type of the first interface.
func (r *Reader) LinkType() layers.LinkType { return r.linkType }

// Base returns the reference instant, zero until the first packet is read
// unless WithBase was given.
func (r *Reader) Base() time.Time { return r.base }

// ReadNext reads the next frame or error frame, skipping packets that carry
// no CAN frame. It returns io.EOF at the end of the capture.
func (r *Reader) ReadNext() (can.Event, error) {
	for {
		data, ci, err := r.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return can.Event{}, io.EOF
			}
			return can.Event{}, errors.Wrap(err, "failed to read packet data")
		}

		r.packetCount++
		if r.base.IsZero() {
			r.base = ci.Timestamp
		}

		packet := gopacket.NewPacket(data, r.linkType, gopacket.Default)
		ev, err := r.extractEvent(packet, ci)
		if err != nil {
			if errors.Is(err, ErrUnsupportedLinkType) {
				return can.Event{}, err
			}
			continue
		}
		return ev, nil
	}
}

// extractEvent extracts the CAN frame from the packet
func (r *Reader) extractEvent(packet gopacket.Packet, ci gopacket.CaptureInfo) (can.Event, error) {
	var (
		payload []byte
		order   binary.ByteOrder
	)
	switch r.linkType {
	case layers.LinkTypeLinuxSLL:
		// cooked captures carry can_id in host order, little-endian on every
		// platform SocketCAN captures come from in practice
		order = binary.LittleEndian
		if sllLayer := packet.Layer(layers.LayerTypeLinuxSLL); sllLayer != nil {
			payload = sllLayer.(*layers.LinuxSLL).Payload
		} else {
			payload = packet.Data()
		}
	case LinkTypeCANSocketCAN:
		order = binary.BigEndian
		payload = packet.Data()
	default:
		return can.Event{}, errors.Wrapf(ErrUnsupportedLinkType, "%v", r.linkType)
	}

	return decodeCANFrame(payload, order, ci.Timestamp.Sub(r.base))
}

// decodeCANFrame decodes a struct can_frame: can_id(4) dlc(1) pad(3) data(8).
func decodeCANFrame(data []byte, order binary.ByteOrder, ts time.Duration) (can.Event, error) {
	if len(data) < 8 {
		return can.Event{}, errors.Wrapf(ErrShortFrame, "%d bytes", len(data))
	}

	canIDRaw := order.Uint32(data[0:4])
	dlc := data[4]
	n := int(dlc)
	if n > can.MaxDLC {
		n = can.MaxDLC
	}

	var payload [8]byte
	if len(data) >= 8+n {
		copy(payload[:], data[8:8+n])
	}

	if canIDRaw&idFlagError != 0 {
		code := uint64(canIDRaw & can.ExtendedIDMask)
		return can.ErrorEvent(can.NewTimestamped(ts, can.NewError(code))), nil
	}

	ide := canIDRaw&can.IDEFlag != 0
	rtr := canIDRaw&can.RTRFlag != 0
	id := canIDRaw & can.ExtendedIDMask
	if !ide {
		id &= can.StandardIDMask
	}
	frame := can.NewFrameFromBytes(id, ide, rtr, dlc, payload)
	return can.FrameEvent(can.NewTimestamped(ts, frame)), nil
}

// PacketCount returns the number of packets read
func (r *Reader) PacketCount() uint64 {
	return r.packetCount
}

// EncodeCANFrame is the inverse of the frame decoding used by the reader for
// LINKTYPE_CAN_SOCKETCAN captures.
func EncodeCANFrame(f can.Frame) []byte {
	buf := make([]byte, canFrameBytes)
	binary.BigEndian.PutUint32(buf[0:4], f.Key())
	buf[4] = f.DLC()
	b := f.Bytes()
	copy(buf[8:], b[:])
	return buf
}

// EncodeCANError encodes an error frame carrying code as its error class.
func EncodeCANError(e can.Error) []byte {
	buf := make([]byte, canFrameBytes)
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.Erno()&can.ExtendedIDMask)|idFlagError)
	buf[4] = can.MaxDLC
	return buf
}
