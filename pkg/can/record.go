package can

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// FrameRecord is the structured form of a Frame used by every encoder.
// ID is the masked identifier; the flags travel as separate fields.
type FrameRecord struct {
	ID   uint32 `json:"id" msgpack:"id"`
	IDE  bool   `json:"ide" msgpack:"ide"`
	RTR  bool   `json:"rtr" msgpack:"rtr"`
	DLC  uint8  `json:"dlc" msgpack:"dlc"`
	Data uint64 `json:"data" msgpack:"data"`
}

// ErrorRecord is the structured form of an Error. Name and Description are
// derived from the code and ignored when decoding.
type ErrorRecord struct {
	Data        uint64 `json:"data" msgpack:"data"`
	Name        string `json:"name,omitempty" msgpack:"name,omitempty"`
	Description string `json:"description,omitempty" msgpack:"description,omitempty"`
}

type timestampedRecord[T any] struct {
	Timestamp int64 `json:"timestamp" msgpack:"timestamp"` // nanoseconds
	Value     T     `json:"value" msgpack:"value"`
}

// Record unpacks f into named fields.
func (f Frame) Record() FrameRecord {
	return FrameRecord{ID: f.ID(), IDE: f.IDE(), RTR: f.RTR(), DLC: f.dlc, Data: f.data}
}

// Frame packs r. ID bits above the 29-bit identifier are dropped so they
// never leak into the flags.
func (r FrameRecord) Frame() Frame {
	return NewFrame(r.ID&ExtendedIDMask, r.IDE, r.RTR, r.DLC, r.Data)
}

// Record returns e with its derived name and description.
func (e Error) Record() ErrorRecord {
	kind := DescribeError(e.code)
	return ErrorRecord{Data: e.code, Name: kind.Name(), Description: kind.Description()}
}

func (f Frame) MarshalJSON() ([]byte, error) { return json.Marshal(f.Record()) }

func (f *Frame) UnmarshalJSON(b []byte) error {
	var r FrameRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return errors.Wrap(err, "decode frame record")
	}
	*f = r.Frame()
	return nil
}

func (f Frame) EncodeMsgpack(enc *msgpack.Encoder) error { return enc.Encode(f.Record()) }

func (f *Frame) DecodeMsgpack(dec *msgpack.Decoder) error {
	var r FrameRecord
	if err := dec.Decode(&r); err != nil {
		return errors.Wrap(err, "decode frame record")
	}
	*f = r.Frame()
	return nil
}

func (e Error) MarshalJSON() ([]byte, error) { return json.Marshal(e.Record()) }

func (e *Error) UnmarshalJSON(b []byte) error {
	var r ErrorRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return errors.Wrap(err, "decode error record")
	}
	e.code = r.Data
	return nil
}

func (e Error) EncodeMsgpack(enc *msgpack.Encoder) error { return enc.Encode(e.Record()) }

func (e *Error) DecodeMsgpack(dec *msgpack.Decoder) error {
	var r ErrorRecord
	if err := dec.Decode(&r); err != nil {
		return errors.Wrap(err, "decode error record")
	}
	e.code = r.Data
	return nil
}

// MarshalJSON emits {"timestamp": <ns>, "value": <T>}. T is encoded with its
// own JSON encoding.
func (t Timestamped[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(timestampedRecord[T]{Timestamp: int64(t.timestamp), Value: t.value})
}

func (t *Timestamped[T]) UnmarshalJSON(b []byte) error {
	var r timestampedRecord[T]
	if err := json.Unmarshal(b, &r); err != nil {
		return errors.Wrap(err, "decode timestamped record")
	}
	t.timestamp, t.value = time.Duration(r.Timestamp), r.Value
	return nil
}

func (t Timestamped[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(timestampedRecord[T]{Timestamp: int64(t.timestamp), Value: t.value})
}

func (t *Timestamped[T]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var r timestampedRecord[T]
	if err := dec.Decode(&r); err != nil {
		return errors.Wrap(err, "decode timestamped record")
	}
	t.timestamp, t.value = time.Duration(r.Timestamp), r.Value
	return nil
}
