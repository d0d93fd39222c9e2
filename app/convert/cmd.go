package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/canframe/pkg/can"
	"github.com/BIwashi/canframe/pkg/cli"
	"github.com/BIwashi/canframe/pkg/dbc"
	"github.com/BIwashi/canframe/pkg/mcap"
	"github.com/BIwashi/canframe/pkg/pcapng"
	"github.com/BIwashi/canframe/pkg/record"
)

const (
	FormatMCAP    = "mcap"
	FormatJSONL   = "jsonl"
	FormatMsgpack = "msgpack"
)

const progressEvery = 10000

type converter struct {
	dbcFile    string
	pcapngFile string
	outFile    string
	format     string
}

func NewCommand() *cobra.Command {
	s := &converter{
		format: FormatMCAP,
	}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert CAN frames captured with pcapng to MCAP, JSON lines or MessagePack.",
		Long: `Convert PCAPNG files captured from a CAN bus.

Every frame and error frame is written as a timestamped record. Timestamps
are measured from the first packet of the capture. MCAP output carries one
protobuf channel per CAN id, named after the DBC message when --dbc-file is given.`,
		Example: `  # Convert PCAPNG to MCAP
  canframe convert --pcapng-file capture.pcapng --out output.mcap --dbc-file vehicle.dbc

  # Convert PCAPNG to JSON lines
  canframe convert --pcapng-file capture.pcapng --out output.jsonl --format jsonl`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file used to name MCAP channels")
	cmd.Flags().StringVar(&s.pcapngFile, "pcapng-file", s.pcapngFile, "PCAPNG file")
	cmd.Flags().StringVar(&s.outFile, "out", s.outFile, "Output file")
	cmd.Flags().StringVar(&s.format, "format", s.format, "Output format (mcap, jsonl, msgpack)")

	cmd.MarkFlagRequired("pcapng-file")
	cmd.MarkFlagRequired("out")

	return cmd
}

func (s *converter) validate() error {
	switch s.format {
	case FormatMCAP, FormatJSONL, FormatMsgpack:
	default:
		return errors.Wrapf(cli.ErrInvalidOption, "format %q", s.format)
	}
	if s.pcapngFile == "" || s.outFile == "" {
		return errors.Wrap(cli.ErrInvalidOption, "--pcapng-file and --out are required")
	}
	if s.pcapngFile == s.outFile {
		return errors.Wrap(cli.ErrInvalidOption, "--out must differ from --pcapng-file")
	}
	return nil
}

func (s *converter) run(ctx context.Context, input cli.Input) error {
	if err := s.validate(); err != nil {
		return err
	}
	input.Logger.Info("starting conversion",
		"pcapng_file", s.pcapngFile,
		"out_file", s.outFile,
		"format", s.format,
		"dbc_file", s.dbcFile,
	)

	var catalog *dbc.Catalog
	if s.dbcFile != "" {
		var err error
		catalog, err = dbc.ParseFile(s.dbcFile)
		if err != nil {
			return errors.Wrap(err, "failed to parse DBC file")
		}
		for _, w := range catalog.Warnings() {
			input.Logger.Warn("dbc_warning", "error", w)
		}
		input.Logger.Info(fmt.Sprintf("found %d messages in DBC file", catalog.Len()))
	}

	in, err := os.Open(s.pcapngFile)
	if err != nil {
		return errors.Wrap(err, "failed to open PCAPNG file")
	}
	defer in.Close()

	reader, err := pcapng.NewReader(in)
	if err != nil {
		return err
	}

	out, err := os.Create(s.outFile)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	defer out.Close()

	st, err := s.convert(ctx, reader, out, catalog, input)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "failed to close output file")
	}

	input.Logger.Info("conversion completed",
		"packets", reader.PacketCount(),
		"frames", st.frames,
		"errors", st.errors,
		"unique_ids", len(st.ids),
		"output_file", s.outFile,
		"duration", st.elapsed,
		"rate_fps", fmt.Sprintf("%.2f", float64(st.frames+st.errors)/st.elapsed.Seconds()),
	)
	for id, n := range st.ids {
		if catalog != nil {
			if name, ok := catalog.Name(id); ok {
				input.Logger.Debug(fmt.Sprintf("  0x%03X (%s): %d frames", id, name, n))
				continue
			}
		}
		input.Logger.Debug(fmt.Sprintf("  0x%03X: %d frames", id, n))
	}
	return nil
}

type stats struct {
	frames  int
	errors  int
	ids     map[uint32]int
	elapsed time.Duration
}

// convert copies every event from reader to a sink of the configured format.
// The sink is opened on the first event so MCAP log times start at the
// capture's first packet.
func (s *converter) convert(ctx context.Context, reader *pcapng.Reader, out io.Writer, catalog *dbc.Catalog, input cli.Input) (stats, error) {
	st := stats{ids: make(map[uint32]int)}
	start := time.Now()

	var sink record.Sink
	for {
		select {
		case <-ctx.Done():
			return st, errors.Wrap(ctx.Err(), "conversion cancelled")
		default:
		}

		ev, err := reader.ReadNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return st, errors.Wrap(err, "failed to read frame")
		}

		if sink == nil {
			if sink, err = s.newSink(out, reader.Base(), catalog); err != nil {
				return st, err
			}
		}
		if err := record.Write(sink, ev); err != nil {
			return st, errors.Wrap(err, "failed to write record")
		}

		if ev.IsError {
			st.errors++
			input.Logger.Debug("error_frame",
				"kind", can.DescribeError(ev.Error.Value().Erno()).Name(),
				"timestamp", ev.Timestamp(),
			)
		} else {
			st.frames++
			st.ids[ev.Frame.Value().ID()]++
		}

		if n := st.frames + st.errors; n%progressEvery == 0 {
			input.Logger.Info(fmt.Sprintf("progress: %d frames, %d error frames", st.frames, st.errors))
		}
	}

	if sink == nil {
		// empty capture, still emit a valid file
		var err error
		if sink, err = s.newSink(out, reader.Base(), catalog); err != nil {
			return st, err
		}
	}
	if err := sink.Close(); err != nil {
		return st, errors.Wrap(err, "failed to finalize output")
	}
	st.elapsed = time.Since(start)
	return st, nil
}

func (s *converter) newSink(out io.Writer, base time.Time, catalog *dbc.Catalog) (record.Sink, error) {
	switch s.format {
	case FormatJSONL:
		return record.NewJSONWriter(out), nil
	case FormatMsgpack:
		return record.NewMsgpackWriter(out), nil
	default:
		var opts []mcap.Option
		if catalog != nil {
			opts = append(opts, mcap.WithNamer(catalog.Name))
		}
		w, err := mcap.NewWriter(out, base, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create MCAP writer")
		}
		return w, nil
	}
}
