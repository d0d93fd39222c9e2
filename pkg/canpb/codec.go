package canpb

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/BIwashi/canframe/pkg/can"
)

// Codec maps can.Timestamped[T] to the Timestamped<T> message of the schema.
// A codec is stateless and safe for concurrent use.
type Codec[T any] struct {
	value  protoreflect.MessageDescriptor
	timed  protoreflect.MessageDescriptor
	encode func(T, protoreflect.Message)
	decode func(protoreflect.Message) (T, error)
}

var (
	// FrameCodec encodes can.TFrame as canframe.v1.TimestampedCanFrame.
	FrameCodec = &Codec[can.Frame]{
		value:  message("CanFrame"),
		timed:  message("TimestampedCanFrame"),
		encode: encodeFrame,
		decode: decodeFrame,
	}
	// ErrorCodec encodes can.TError as canframe.v1.TimestampedCanError.
	ErrorCodec = &Codec[can.Error]{
		value:  message("CanError"),
		timed:  message("TimestampedCanError"),
		encode: encodeError,
		decode: decodeError,
	}
)

// FullName returns the full name of the timestamped message, e.g.
// canframe.v1.TimestampedCanFrame.
func (c *Codec[T]) FullName() string { return string(c.timed.FullName()) }

// Message builds the protobuf message for t.
func (c *Codec[T]) Message(t can.Timestamped[T]) proto.Message {
	d, v := t.Destruct()
	m := dynamicpb.NewMessage(c.timed)
	fields := c.timed.Fields()

	m.Set(fields.ByName("timestamp"), protoreflect.ValueOfMessage(durationpb.New(d).ProtoReflect()))
	c.encode(v, m.Mutable(fields.ByName("value")).Message())
	return m
}

// Marshal encodes t in protobuf wire format.
func (c *Codec[T]) Marshal(t can.Timestamped[T]) ([]byte, error) {
	data, err := proto.Marshal(c.Message(t))
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", c.FullName())
	}
	return data, nil
}

// Unmarshal decodes a message produced by Marshal.
func (c *Codec[T]) Unmarshal(data []byte) (can.Timestamped[T], error) {
	m := dynamicpb.NewMessage(c.timed)
	if err := proto.Unmarshal(data, m); err != nil {
		return can.Timestamped[T]{}, errors.Wrapf(err, "unmarshal %s", c.FullName())
	}
	fields := c.timed.Fields()
	d, err := getDuration(m.Get(fields.ByName("timestamp")).Message())
	if err != nil {
		return can.Timestamped[T]{}, errors.Wrapf(err, "unmarshal %s", c.FullName())
	}
	v, err := c.decode(m.Get(fields.ByName("value")).Message())
	if err != nil {
		return can.Timestamped[T]{}, errors.Wrapf(err, "unmarshal %s", c.FullName())
	}
	return can.NewTimestamped(d, v), nil
}

func getDuration(m protoreflect.Message) (time.Duration, error) {
	fs := m.Descriptor().Fields()
	pb := &durationpb.Duration{
		Seconds: m.Get(fs.ByName("seconds")).Int(),
		Nanos:   int32(m.Get(fs.ByName("nanos")).Int()),
	}
	if err := pb.CheckValid(); err != nil {
		return 0, errors.Wrap(err, "decode timestamp")
	}
	return pb.AsDuration(), nil
}

func encodeFrame(f can.Frame, m protoreflect.Message) {
	fs := m.Descriptor().Fields()
	r := f.Record()
	m.Set(fs.ByName("id"), protoreflect.ValueOfUint32(r.ID))
	m.Set(fs.ByName("ide"), protoreflect.ValueOfBool(r.IDE))
	m.Set(fs.ByName("rtr"), protoreflect.ValueOfBool(r.RTR))
	m.Set(fs.ByName("dlc"), protoreflect.ValueOfUint32(uint32(r.DLC)))
	m.Set(fs.ByName("data"), protoreflect.ValueOfUint64(r.Data))
}

func decodeFrame(m protoreflect.Message) (can.Frame, error) {
	fs := m.Descriptor().Fields()
	dlc := m.Get(fs.ByName("dlc")).Uint()
	if dlc > math.MaxUint8 {
		return can.Frame{}, errors.Wrapf(can.ErrInvalidFrame, "dlc %d does not fit in a byte", dlc)
	}
	return can.FrameRecord{
		ID:   uint32(m.Get(fs.ByName("id")).Uint()),
		IDE:  m.Get(fs.ByName("ide")).Bool(),
		RTR:  m.Get(fs.ByName("rtr")).Bool(),
		DLC:  uint8(dlc),
		Data: m.Get(fs.ByName("data")).Uint(),
	}.Frame(), nil
}

func encodeError(e can.Error, m protoreflect.Message) {
	fs := m.Descriptor().Fields()
	r := e.Record()
	m.Set(fs.ByName("data"), protoreflect.ValueOfUint64(r.Data))
	m.Set(fs.ByName("name"), protoreflect.ValueOfString(r.Name))
	m.Set(fs.ByName("description"), protoreflect.ValueOfString(r.Description))
}

func decodeError(m protoreflect.Message) (can.Error, error) {
	return can.NewError(m.Get(m.Descriptor().Fields().ByName("data")).Uint()), nil
}
