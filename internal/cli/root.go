package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/egx/internal/config"
	"github.com/roach88/egx/internal/metrics"
)

// RootOptions holds global flags for all commands, plus the settings they
// resolve to once the command starts.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	TracePath  string

	// Config is Default, or the file named by --config. Populated before
	// any subcommand runs.
	Config config.Config

	// Metrics collects what the command measured. Written to
	// Config.Metrics.Textfile after the command finishes, failed or not.
	Metrics *metrics.Recorder

	tracing *tracing
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the egx CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "egx",
		Short: "egx - e-graph extraction",
		Long: `Extract minimum-cost terms from e-graphs.

egx loads serialized e-graphs, runs bottom-up, depth, greedy-DAG or
ILP extractors on them, checks and measures the results, and records
every run in a SQLite store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.TracePath, "trace", "", "write spans to this file as JSON lines (default from config)")

	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewModelCommand(opts))
	cmd.AddCommand(NewBenchCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewExtractorsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	opts.finishAfter(cmd)

	return cmd
}

// finishAfter wraps the RunE of every command below cmd so metrics and spans
// are flushed even when the command fails. Cobra skips post-run hooks after
// an error.
func (o *RootOptions) finishAfter(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		if run := sub.RunE; run != nil {
			sub.RunE = func(cmd *cobra.Command, args []string) (err error) {
				defer func() {
					ferr := o.finish(context.WithoutCancel(cmd.Context()))
					if err == nil {
						err = ferr
					} else if ferr != nil {
						slog.Error("finishing command", "error", ferr)
					}
				}()
				return run(cmd, args)
			}
		}
		o.finishAfter(sub)
	}
}

// setup loads the config file, installs the default logger and starts
// tracing when a trace file is set.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	o.Config = config.Default()
	if o.ConfigPath != "" {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading config", err)
		}
		o.Config = cfg
	}

	level, err := config.ParseLevel(o.Config.Log.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), level))

	o.Metrics = metrics.New()

	tracePath := o.TracePath
	if tracePath == "" {
		tracePath = o.Config.Trace.File
	}
	if tracePath != "" {
		t, err := startTracing(tracePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "starting tracing", err)
		}
		o.tracing = t
	}
	return nil
}

// finish writes the metrics textfile and flushes spans.
func (o *RootOptions) finish(ctx context.Context) error {
	err := o.flushMetrics()
	if o.tracing != nil {
		terr := o.tracing.shutdown(ctx)
		o.tracing = nil
		if terr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "exporting spans", terr)
		}
	}
	return err
}

func (o *RootOptions) flushMetrics() error {
	path := o.Config.Metrics.Textfile
	if path == "" || o.Metrics == nil {
		return nil
	}
	if err := o.Metrics.WriteTextfile(path); err != nil {
		return WrapExitError(ExitCommandError, "exporting metrics", err)
	}
	slog.Debug("metrics written", "path", path)
	return nil
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
