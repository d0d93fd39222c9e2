package mcap

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/foxglove/mcap/go/mcap"

	"github.com/BIwashi/canframe/pkg/can"
	"github.com/BIwashi/canframe/pkg/canpb"
)

// ErrorsTopic carries every error frame.
const ErrorsTopic = "/can/errors"

// Namer resolves a CAN identifier to a message name.
type Namer func(id uint32) (string, bool)

// Writer writes timestamped frames and errors into an MCAP file.
//
// Design decisions:
//   - One protobuf schema per record kind (canframe.v1.TimestampedCanFrame,
//     canframe.v1.TimestampedCanError), both backed by the same descriptor set.
//   - Channel granularity = CAN identifier for frames, a single channel for errors.
//   - Topic naming: /can/<MessageName> when a Namer knows the id, /can/0x<ID> otherwise.
//     Extended frames use the /can/ext/ prefix so they never share a topic with
//     a standard frame of the same numeric id.
//   - Log and publish time = base + record timestamp.
//
// A frame channel is created lazily on first occurrence of its identifier.
type Writer struct {
	mu            sync.Mutex
	writer        *mcap.Writer
	base          time.Time
	namer         Namer
	frameSchemaID uint16
	errorSchemaID uint16
	nextChanID    uint16
	errorChanID   uint16
	channels      map[uint32]uint16 // key: can.Frame.Key() with RTR cleared
	sequence      map[uint16]uint32
}

// Option configures a Writer.
type Option func(*Writer)

// WithNamer names frame channels after the message the id belongs to.
func WithNamer(n Namer) Option { return func(w *Writer) { w.namer = n } }

// NewWriter initializes an MCAP writer with the canframe.v1 schemas registered.
// The provided io.Writer should be an opened file (will not be closed here).
func NewWriter(out io.Writer, base time.Time, opts ...Option) (*Writer, error) {
	w, err := mcap.NewWriter(out, &mcap.WriterOptions{
		Chunked:     true,
		ChunkSize:   2 * 1024 * 1024, // 2MB chunks
		Compression: mcap.CompressionZSTD,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create MCAP writer")
	}

	if err := w.WriteHeader(&mcap.Header{
		Profile: "",
		Library: "canframe",
	}); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	data, err := canpb.FileDescriptorSet()
	if err != nil {
		return nil, err
	}

	mw := &Writer{
		writer:        w,
		base:          base,
		frameSchemaID: 1,
		errorSchemaID: 2,
		channels:      make(map[uint32]uint16),
		sequence:      make(map[uint16]uint32),
	}
	for _, o := range opts {
		o(mw)
	}

	for _, s := range []struct {
		id   uint16
		name string
	}{
		{mw.frameSchemaID, canpb.FrameCodec.FullName()},
		{mw.errorSchemaID, canpb.ErrorCodec.FullName()},
	} {
		if err := w.WriteSchema(&mcap.Schema{
			ID:       s.id,
			Name:     s.name,
			Encoding: "protobuf",
			Data:     data,
		}); err != nil {
			return nil, errors.Wrapf(err, "write schema %s", s.name)
		}
	}

	return mw, nil
}

func (w *Writer) writeChannel(schemaID uint16, topic string, metadata map[string]string) (uint16, error) {
	w.nextChanID++
	chID := w.nextChanID
	if err := w.writer.WriteChannel(&mcap.Channel{
		ID:              chID,
		SchemaID:        schemaID,
		Topic:           topic,
		MessageEncoding: "protobuf",
		Metadata:        metadata,
	}); err != nil {
		return 0, errors.Wrapf(err, "write channel (topic=%s)", topic)
	}
	return chID, nil
}

// frameChannel ensures a channel exists for the frame's identifier; returns channel ID.
// Caller holds w.mu.
func (w *Writer) frameChannel(f can.Frame) (uint16, error) {
	key := f.Key() &^ can.RTRFlag
	if id, ok := w.channels[key]; ok {
		return id, nil
	}

	hexID := fmt.Sprintf("0x%X", f.ID())
	prefix := "/can/"
	if f.IDE() {
		prefix = "/can/ext/"
	}
	topic := prefix + hexID
	metadata := map[string]string{
		"can_id":      hexID,
		"is_extended": fmt.Sprintf("%t", f.IDE()),
	}
	if w.namer != nil {
		if name, ok := w.namer(f.ID()); ok {
			topic = prefix + name
			metadata["message"] = name
		}
	}

	chID, err := w.writeChannel(w.frameSchemaID, topic, metadata)
	if err != nil {
		return 0, err
	}
	w.channels[key] = chID
	return chID, nil
}

func (w *Writer) writeMessage(channelID uint16, ts time.Duration, data []byte) error {
	at := uint64(w.base.Add(ts).UnixNano())
	seq := w.sequence[channelID]
	w.sequence[channelID] = seq + 1
	if err := w.writer.WriteMessage(&mcap.Message{
		ChannelID:   channelID,
		Sequence:    seq,
		LogTime:     at,
		PublishTime: at,
		Data:        data,
	}); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// WriteFrame writes a single frame on its identifier's channel.
func (w *Writer) WriteFrame(tf can.TFrame) error {
	data, err := canpb.FrameCodec.Marshal(tf)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	chID, err := w.frameChannel(tf.Value())
	if err != nil {
		return err
	}
	return w.writeMessage(chID, tf.Timestamp(), data)
}

// WriteError writes a single error on ErrorsTopic.
func (w *Writer) WriteError(te can.TError) error {
	data, err := canpb.ErrorCodec.Marshal(te)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errorChanID == 0 {
		chID, err := w.writeChannel(w.errorSchemaID, ErrorsTopic, map[string]string{})
		if err != nil {
			return err
		}
		w.errorChanID = chID
	}
	return w.writeMessage(w.errorChanID, te.Timestamp(), data)
}

// Close finalizes the MCAP file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Close()
}
