// Package record streams timestamped frames and errors as self-describing
// records, one per line for JSON and back to back for MessagePack.
//
// Every record is an envelope {"kind": "frame"|"error", "record": {"timestamp": ns, "value": ...}}.
package record

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BIwashi/canframe/pkg/can"
)

const (
	KindFrame = "frame"
	KindError = "error"
)

// ErrUnknownKind is returned by readers for envelopes of an unknown kind.
var ErrUnknownKind = errors.New("unknown record kind")

// Sink receives timestamped frames and errors. The MCAP writer satisfies it too.
type Sink interface {
	WriteFrame(can.TFrame) error
	WriteError(can.TError) error
	Close() error
}

// Write forwards ev to the matching Sink method.
func Write(s Sink, ev can.Event) error {
	if ev.IsError {
		return s.WriteError(ev.Error)
	}
	return s.WriteFrame(ev.Frame)
}

type envelope[T any] struct {
	Kind   string             `json:"kind" msgpack:"kind"`
	Record can.Timestamped[T] `json:"record" msgpack:"record"`
}

type rawJSONEnvelope struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record"`
}

type rawMsgpackEnvelope struct {
	Kind   string             `msgpack:"kind"`
	Record msgpack.RawMessage `msgpack:"record"`
}

type encoder interface {
	Encode(v any) error
}

// Writer encodes records to an underlying stream.
type Writer struct {
	buf *bufio.Writer
	enc encoder
}

// NewJSONWriter writes one JSON record per line.
func NewJSONWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// NewMsgpackWriter writes a stream of MessagePack records.
func NewMsgpackWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: msgpack.NewEncoder(buf)}
}

func (w *Writer) WriteFrame(tf can.TFrame) error {
	if err := w.enc.Encode(envelope[can.Frame]{Kind: KindFrame, Record: tf}); err != nil {
		return errors.Wrap(err, "encode frame record")
	}
	return nil
}

func (w *Writer) WriteError(te can.TError) error {
	if err := w.enc.Encode(envelope[can.Error]{Kind: KindError, Record: te}); err != nil {
		return errors.Wrap(err, "encode error record")
	}
	return nil
}

// Close flushes buffered records. The underlying writer is left open.
func (w *Writer) Close() error {
	return errors.Wrap(w.buf.Flush(), "flush records")
}

// Reader decodes records written by Writer.
type Reader struct {
	next func() (can.Event, error)
}

// NewJSONReader reads records written by a JSON Writer.
func NewJSONReader(r io.Reader) *Reader {
	dec := json.NewDecoder(r)
	return &Reader{next: func() (can.Event, error) {
		var env rawJSONEnvelope
		if err := dec.Decode(&env); err != nil {
			return can.Event{}, err
		}
		return decodeEvent(env.Kind, env.Record, json.Unmarshal)
	}}
}

// NewMsgpackReader reads records written by a MessagePack Writer.
func NewMsgpackReader(r io.Reader) *Reader {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	return &Reader{next: func() (can.Event, error) {
		var env rawMsgpackEnvelope
		if err := dec.Decode(&env); err != nil {
			return can.Event{}, err
		}
		return decodeEvent(env.Kind, env.Record, msgpack.Unmarshal)
	}}
}

// Next returns the next event, or io.EOF at a clean end of stream.
func (r *Reader) Next() (can.Event, error) {
	ev, err := r.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return can.Event{}, io.EOF
		}
		return can.Event{}, errors.Wrap(err, "read record")
	}
	return ev, nil
}

func decodeEvent(kind string, raw []byte, unmarshal func([]byte, any) error) (can.Event, error) {
	switch kind {
	case KindFrame:
		var tf can.TFrame
		if err := unmarshal(raw, &tf); err != nil {
			return can.Event{}, err
		}
		return can.FrameEvent(tf), nil
	case KindError:
		var te can.TError
		if err := unmarshal(raw, &te); err != nil {
			return can.Event{}, err
		}
		return can.ErrorEvent(te), nil
	default:
		return can.Event{}, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
}
