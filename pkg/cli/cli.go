// Package cli wires cobra commands to a shared logger and a signal-aware context.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const (
	EnvLogLevel  = "CANFRAME_LOG_LEVEL"
	EnvLogFormat = "CANFRAME_LOG_FORMAT"
)

var ErrInvalidOption = errors.New("invalid option")

// Input is handed to every command run through WithContext.
type Input struct {
	Logger *slog.Logger
}

type options struct {
	logLevel  string
	logFormat string
}

type CLI struct {
	root *cobra.Command
	opts *options
}

func NewCLI(name, desc string) *CLI {
	opts := &options{
		logLevel:  envOr(EnvLogLevel, "info"),
		logFormat: envOr(EnvLogFormat, "text"),
	}
	root := &cobra.Command{
		Use:           name,
		Short:         desc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level (debug, info, warn, error). Env: "+EnvLogLevel)
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", opts.logFormat, "Log format (text, json). Env: "+EnvLogFormat)
	return &CLI{root: root, opts: opts}
}

func (c *CLI) AddCommands(cmds ...*cobra.Command) {
	c.root.AddCommand(cmds...)
}

// Root exposes the root command, mostly for tests.
func (c *CLI) Root() *cobra.Command { return c.root }

func (c *CLI) Run() error {
	return c.root.Execute()
}

// WithContext adapts fn to a cobra RunE. The context is cancelled on SIGINT
// or SIGTERM.
func WithContext(fn func(ctx context.Context, input Input) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		logger, err := NewLogger(format, level, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return fn(ctx, Input{Logger: logger})
	}
}

// NewLogger builds a text or json slog logger writing to w. An empty level
// or format selects the default.
func NewLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	var lv slog.Level
	if level != "" {
		if err := lv.UnmarshalText([]byte(level)); err != nil {
			return nil, errors.Wrapf(ErrInvalidOption, "log level %q", level)
		}
	}
	hopts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, errors.Wrapf(ErrInvalidOption, "log format %q", format)
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
