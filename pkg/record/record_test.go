package record

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/canframe/pkg/can"
)

func events() []can.Event {
	return []can.Event{
		can.FrameEvent(can.NewTimestamped(0, can.NewFrame(0x123, false, false, 2, 0x0201))),
		can.ErrorEvent(can.NewTimestamped(time.Millisecond, can.NewError(0x02))),
		can.FrameEvent(can.NewTimestamped(2*time.Millisecond, can.NewFrame(0x1FFFFFFF, true, true, 0, 0))),
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		newWriter func(io.Writer) *Writer
		newReader func(io.Reader) *Reader
	}{
		{name: "json", newWriter: NewJSONWriter, newReader: NewJSONReader},
		{name: "msgpack", newWriter: NewMsgpackWriter, newReader: NewMsgpackReader},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := tc.newWriter(&buf)
			for _, ev := range events() {
				require.NoError(t, Write(w, ev))
			}
			require.NoError(t, w.Close())

			r := tc.newReader(&buf)
			var got []can.Event
			for {
				ev, err := r.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				got = append(got, ev)
			}
			assert.Equal(t, events(), got)
		})
	}
}

func TestJSONWriter_LineShape(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	require.NoError(t, w.WriteFrame(can.NewTimestamped(5*time.Microsecond, can.NewFrame(0x10, false, false, 1, 0xFF))))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t,
		`{"kind":"frame","record":{"timestamp":5000,"value":{"id":16,"ide":false,"rtr":false,"dlc":1,"data":255}}}`,
		lines[0])
}

func TestJSONReader_Errors(t *testing.T) {
	_, err := NewJSONReader(strings.NewReader(`{"kind":"bogus","record":{}}`)).Next()
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = NewJSONReader(strings.NewReader(`{"kind":"frame","record":{"timestamp":"x"}}`)).Next()
	assert.Error(t, err)

	_, err = NewJSONReader(strings.NewReader(``)).Next()
	assert.ErrorIs(t, err, io.EOF)
}
