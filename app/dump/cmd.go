package dump

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/canframe/pkg/can"
	"github.com/BIwashi/canframe/pkg/cli"
	"github.com/BIwashi/canframe/pkg/dbc"
	"github.com/BIwashi/canframe/pkg/pcapng"
)

type dumper struct {
	dbcFile    string
	pcapngFile string
	signals    bool

	out io.Writer
}

func NewCommand() *cobra.Command {
	s := &dumper{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print CAN frames from a pcapng capture in candump format.",
		Example: `  canframe dump --pcapng-file capture.pcapng
  canframe dump --pcapng-file capture.pcapng --dbc-file vehicle.dbc --signals`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.out = cmd.OutOrStdout()
			return cli.WithContext(s.run)(cmd, args)
		},
	}

	cmd.Flags().StringVar(&s.pcapngFile, "pcapng-file", s.pcapngFile, "PCAPNG file")
	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file used to annotate frames")
	cmd.Flags().BoolVar(&s.signals, "signals", s.signals, "Decode signals of known messages (requires --dbc-file)")

	cmd.MarkFlagRequired("pcapng-file")

	return cmd
}

func (s *dumper) validate() error {
	if s.signals && s.dbcFile == "" {
		return errors.Wrap(cli.ErrInvalidOption, "--signals requires --dbc-file")
	}
	return nil
}

func (s *dumper) run(ctx context.Context, input cli.Input) error {
	if err := s.validate(); err != nil {
		return err
	}

	var catalog *dbc.Catalog
	if s.dbcFile != "" {
		var err error
		if catalog, err = dbc.ParseFile(s.dbcFile); err != nil {
			return errors.Wrap(err, "failed to parse DBC file")
		}
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

	w := bufio.NewWriter(s.out)
	defer w.Flush()

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "dump cancelled")
		default:
		}

		ev, err := reader.ReadNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return errors.Wrap(err, "failed to read frame")
		}
		fmt.Fprintln(w, s.line(ev, catalog, input))
	}

	input.Logger.Debug("dump completed", "packets", reader.PacketCount())
	return errors.Wrap(w.Flush(), "flush output")
}

// line formats ev as "(seconds) ID#DATA [name] [signals]". Error frames print
// their kind and raw code instead of a frame.
func (s *dumper) line(ev can.Event, catalog *dbc.Catalog, input cli.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%.6f) ", ev.Timestamp().Seconds())
	if ev.IsError {
		fmt.Fprintf(&b, "ERROR %s", ev.Error.Value())
		return b.String()
	}

	f := ev.Frame.Value()
	b.WriteString(f.String())
	if catalog == nil {
		return b.String()
	}
	if name, ok := catalog.Name(f.ID()); ok {
		b.WriteString(" ")
		b.WriteString(name)
	}
	if !s.signals {
		return b.String()
	}
	signals, err := catalog.Decode(f)
	if err != nil {
		input.Logger.Debug("skip_signal_decode", "can_id", fmt.Sprintf("0x%03X", f.ID()), "error", err)
		return b.String()
	}
	for _, sig := range signals {
		fmt.Fprintf(&b, " %s=%g", sig.Name, sig.Physical)
		if sig.Unit != "" {
			b.WriteString(sig.Unit)
		}
		if sig.Description != "" {
			fmt.Fprintf(&b, "(%s)", sig.Description)
		}
	}
	return b.String()
}
