package mcap

import (
	"bytes"
	"testing"
	"time"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/canframe/pkg/can"
)

func TestWriter_Channels(t *testing.T) {
	var buf bytes.Buffer
	names := map[uint32]string{0x123: "EngineData"}
	w, err := NewWriter(&buf, time.Unix(1700000000, 0), WithNamer(func(id uint32) (string, bool) {
		n, ok := names[id]
		return n, ok
	}))
	require.NoError(t, err)

	records := []can.TFrame{
		can.NewTimestamped(0, can.NewFrame(0x123, false, false, 2, 0x0201)),
		can.NewTimestamped(time.Millisecond, can.NewFrame(0x456, false, false, 1, 0x01)),
		can.NewTimestamped(2*time.Millisecond, can.NewFrame(0x123, false, true, 0, 0)),
	}
	for _, r := range records {
		require.NoError(t, w.WriteFrame(r))
	}
	require.NoError(t, w.WriteError(can.NewTimestamped(3*time.Millisecond, can.NewError(0x10))))
	require.NoError(t, w.Close())

	assert.True(t, bytes.HasPrefix(buf.Bytes(), mcap.Magic))

	reader, err := mcap.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	info, err := reader.Info()
	require.NoError(t, err)

	assert.Equal(t, uint64(4), info.Statistics.MessageCount)
	assert.Len(t, info.Schemas, 2)

	topics := map[string]bool{}
	for _, ch := range info.Channels {
		topics[ch.Topic] = true
	}
	assert.Equal(t, map[string]bool{"/can/EngineData": true, "/can/0x456": true, ErrorsTopic: true}, topics)
}

func TestWriter_ExtendedTopics(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, time.Unix(0, 0), WithNamer(func(id uint32) (string, bool) {
		return "J1939", id == 0x18FEF100
	}))
	require.NoError(t, err)

	for _, f := range []can.Frame{
		can.NewFrame(0x123, false, false, 0, 0),
		can.NewFrame(0x123, true, false, 0, 0),
		can.NewFrame(0x18FEF100, true, false, 0, 0),
	} {
		require.NoError(t, w.WriteFrame(can.NewTimestamped(0, f)))
	}
	require.NoError(t, w.Close())

	reader, err := mcap.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	info, err := reader.Info()
	require.NoError(t, err)

	topics := map[string]string{}
	for _, ch := range info.Channels {
		topics[ch.Topic] = ch.Metadata["is_extended"]
	}
	assert.Equal(t, map[string]string{
		"/can/0x123":     "false",
		"/can/ext/0x123": "true",
		"/can/ext/J1939": "true",
	}, topics)
}
