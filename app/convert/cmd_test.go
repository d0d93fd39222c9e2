package convert

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/canframe/pkg/can"
	"github.com/BIwashi/canframe/pkg/cli"
	"github.com/BIwashi/canframe/pkg/pcapng"
	"github.com/BIwashi/canframe/pkg/record"
)

func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "in.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, pcapng.LinkTypeCANSocketCAN)
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	packets := [][]byte{
		pcapng.EncodeCANFrame(can.NewFrame(0x123, false, false, 8, 0x010FA0)),
		pcapng.EncodeCANError(can.NewError(0x08)),
		pcapng.EncodeCANFrame(can.NewFrame(0x456, false, false, 1, 0x2A)),
	}
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p),
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	require.NoError(t, w.Flush())
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewCommand()
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	cmd.SetOut(io.Discard)
	return cmd.Execute()
}

func TestConvert_JSONL(t *testing.T) {
	dir := t.TempDir()
	in := writeCapture(t, dir)
	out := filepath.Join(dir, "out.jsonl")

	require.NoError(t, execute(t, "--pcapng-file", in, "--out", out, "--format", FormatJSONL))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	r := record.NewJSONReader(f)

	var got []can.Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, can.NewFrame(0x123, false, false, 8, 0x010FA0), got[0].Frame.Value())
	assert.Equal(t, time.Duration(0), got[0].Timestamp())
	assert.True(t, got[1].IsError)
	assert.Equal(t, can.ErrorKindAck, can.DescribeError(got[1].Error.Value().Erno()))
	assert.Equal(t, 2*time.Millisecond, got[2].Timestamp())
}

func TestConvert_MCAP(t *testing.T) {
	dir := t.TempDir()
	in := writeCapture(t, dir)
	dbcPath := filepath.Join(dir, "names.dbc")
	require.NoError(t, os.WriteFile(dbcPath, []byte(`VERSION ""

BU_: ECU

BO_ 291 EngineData: 8 ECU
 SG_ EngineSpeed : 0|16@1+ (0.25,0) [0|16383.75] "rpm" Vector__XXX
`), 0o600))
	out := filepath.Join(dir, "out.mcap")

	require.NoError(t, execute(t, "--pcapng-file", in, "--out", out, "--dbc-file", dbcPath))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	reader, err := mcap.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	info, err := reader.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.Statistics.MessageCount)

	topics := map[string]bool{}
	for _, ch := range info.Channels {
		topics[ch.Topic] = true
	}
	assert.True(t, topics["/can/EngineData"])
	assert.True(t, topics["/can/0x456"])
}

func TestConverter_Validate(t *testing.T) {
	tests := []struct {
		name string
		c    converter
		ok   bool
	}{
		{name: "mcap", c: converter{pcapngFile: "a", outFile: "b", format: FormatMCAP}, ok: true},
		{name: "msgpack", c: converter{pcapngFile: "a", outFile: "b", format: FormatMsgpack}, ok: true},
		{name: "unknown format", c: converter{pcapngFile: "a", outFile: "b", format: "csv"}},
		{name: "same file", c: converter{pcapngFile: "a", outFile: "a", format: FormatJSONL}},
		{name: "missing out", c: converter{pcapngFile: "a", format: FormatJSONL}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, cli.ErrInvalidOption)
		})
	}
}

func TestConvert_MissingInput(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "--pcapng-file", filepath.Join(dir, "nope.pcapng"), "--out", filepath.Join(dir, "out.mcap"))
	assert.Error(t, err)
}
