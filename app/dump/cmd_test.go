package dump

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/canframe/pkg/can"
	"github.com/BIwashi/canframe/pkg/cli"
	"github.com/BIwashi/canframe/pkg/pcapng"
)

const testDBC = `VERSION ""

BU_: ECU

BO_ 291 EngineData: 8 ECU
 SG_ EngineSpeed : 0|16@1+ (0.25,0) [0|16383.75] "rpm" Vector__XXX
 SG_ Running : 16|1@1+ (1,0) [0|1] "" Vector__XXX

VAL_ 291 Running 0 "off" 1 "on" ;
`

func writeCapture(t *testing.T, path string, packets ...[]byte) {
	t.Helper()
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, pcapng.LinkTypeCANSocketCAN)
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p),
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func setup(t *testing.T) (capturePath, dbcPath string) {
	t.Helper()
	dir := t.TempDir()

	capturePath = filepath.Join(dir, "in.pcapng")
	writeCapture(t, capturePath,
		pcapng.EncodeCANFrame(can.NewFrame(0x123, false, false, 8, 0x010FA0)),
		pcapng.EncodeCANError(can.NewError(0x08)),
		pcapng.EncodeCANFrame(can.NewFrame(0x456, false, false, 2, 0x0201)),
	)

	dbcPath = filepath.Join(dir, "test.dbc")
	require.NoError(t, os.WriteFile(dbcPath, []byte(testDBC), 0o600))
	return capturePath, dbcPath
}

func execute(t *testing.T, args ...string) ([]string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n"), err
}

func TestDump(t *testing.T) {
	capturePath, dbcPath := setup(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "plain",
			args: []string{"--pcapng-file", capturePath},
			want: []string{
				"(0.000000) 123#A00F010000000000",
				"(0.001000) ERROR CAN ACK Error (0x8)",
				"(0.002000) 456#0102",
			},
		},
		{
			name: "named",
			args: []string{"--pcapng-file", capturePath, "--dbc-file", dbcPath},
			want: []string{
				"(0.000000) 123#A00F010000000000 EngineData",
				"(0.001000) ERROR CAN ACK Error (0x8)",
				"(0.002000) 456#0102",
			},
		},
		{
			name: "signals",
			args: []string{"--pcapng-file", capturePath, "--dbc-file", dbcPath, "--signals"},
			want: []string{
				"(0.000000) 123#A00F010000000000 EngineData EngineSpeed=1000rpm Running=1(on)",
				"(0.001000) ERROR CAN ACK Error (0x8)",
				"(0.002000) 456#0102",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines, err := execute(t, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, lines)
		})
	}
}

func TestDump_SignalsWithoutDBC(t *testing.T) {
	capturePath, _ := setup(t)
	_, err := execute(t, "--pcapng-file", capturePath, "--signals")
	assert.ErrorIs(t, err, cli.ErrInvalidOption)
}

func TestDump_OversizedDLC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fd.pcapng")
	writeCapture(t, path, pcapng.EncodeCANFrame(can.NewFrame(0x123, false, false, 12, 0x0102)))

	lines, err := execute(t, "--pcapng-file", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"(0.000000) 123#0201000000000000"}, lines)
}
