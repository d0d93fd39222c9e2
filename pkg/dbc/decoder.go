package dbc

import (
	"github.com/cockroachdb/errors"
	"go.einride.tech/can/pkg/descriptor"

	"github.com/BIwashi/canframe/pkg/can"
)

var (
	ErrUnknownMessage = errors.New("unknown message id")
	ErrShapeMismatch  = errors.New("frame shape mismatch")
)

// Signal is one decoded signal value.
type Signal struct {
	Name string
	// Raw is bool, float64, int64 or uint64 depending on the signal definition.
	Raw         any
	Physical    float64
	Unit        string
	Description string
}

// Decode extracts the signals of f in definition order. Multiplexed signals
// are only included when the multiplexer selects them.
func (c *Catalog) Decode(f can.Frame) ([]Signal, error) {
	m, ok := c.db.Message(f.ID())
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMessage, "0x%X", f.ID())
	}
	if f.RTR() || f.IDE() != m.IsExtended || f.DLC() != m.Length {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: dlc %d, want %d", m.Name, f.DLC(), m.Length)
	}

	data := f.ToEinride().Data
	var (
		mux    *descriptor.Signal
		muxVal uint64
	)
	for _, s := range m.Signals {
		if s.IsMultiplexer {
			mux = s
			muxVal = s.UnmarshalUnsigned(data)
		}
	}

	out := make([]Signal, 0, len(m.Signals))
	for _, s := range m.Signals {
		if s.IsMultiplexed && (mux == nil || uint64(s.MultiplexerValue) != muxVal) {
			continue
		}
		sig := Signal{Name: s.Name, Unit: s.Unit}
		switch {
		case s.Length == 1:
			v := s.UnmarshalBool(data)
			sig.Raw = v
			if v {
				sig.Physical = s.ToPhysical(1)
			} else {
				sig.Physical = s.ToPhysical(0)
			}
		case s.IsFloat:
			v := s.UnmarshalFloat(data)
			sig.Raw = v
			sig.Physical = v
		case s.IsSigned:
			v := s.UnmarshalSigned(data)
			sig.Raw = v
			sig.Physical = s.ToPhysical(float64(v))
		default:
			v := s.UnmarshalUnsigned(data)
			sig.Raw = v
			sig.Physical = s.ToPhysical(float64(v))
		}
		if vd, ok := s.UnmarshalValueDescription(data); ok {
			sig.Description = vd
		}
		out = append(out, sig)
	}
	return out, nil
}
