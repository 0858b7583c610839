package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nvandessel/impairsim/internal/config"
	"github.com/nvandessel/impairsim/internal/dispatch"
	"github.com/nvandessel/impairsim/internal/impair"
	"github.com/nvandessel/impairsim/internal/ledger"
	"github.com/nvandessel/impairsim/internal/logging"
	"github.com/nvandessel/impairsim/internal/pipeline"
	"github.com/nvandessel/impairsim/internal/record"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

// usageError marks invalid invocations; they exit with pipeline.ExitUsage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func (e *usageError) ExitCode() int { return pipeline.ExitUsage }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	cancel()
	os.Exit(pipeline.ExitCode(err))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "impairsim",
		Short: "Replay detection recordings under simulated network impairment",
		Long: `impairsim rewrites the timestamps of a recorded detection stream (JSONL)
to emulate transport impairment, writes an ordered replay file, and can
hand that file to a downstream tracker.

Modes:
  lag     add a constant delay (--lag-ms) to every record
  jitter  drop records with probability --drop-p and add Gaussian
          noise with standard deviation --sigma-ms to the survivors

Examples:
  impairsim --input rec.jsonl --output lag.jsonl
  impairsim --input rec.jsonl --output jit.jsonl --mode jitter --seed 7
  impairsim --input rec.jsonl --output jit.jsonl --mode jitter --tracker-cmd "tracker --in {input}"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runImpair,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.impairsim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, trace")

	flags := rootCmd.Flags()
	flags.String("input", "", "Input JSONL recording (required)")
	flags.String("output", "", "Output JSONL path (required)")
	flags.String("mode", string(impair.ModeLag), "Impairment mode: lag or jitter")
	flags.Float64("lag-ms", impair.DefaultLagMS, "Constant delay in ms (lag mode)")
	flags.Float64("sigma-ms", impair.DefaultSigmaMS, "Jitter standard deviation in ms (jitter mode)")
	flags.Float64("drop-p", impair.DefaultDropP, "Per-record drop probability (jitter mode)")
	flags.Int64("seed", 0, "Random seed for reproducible jitter")
	flags.String("tracker-cmd", "", "Command to run on the output; {input} and {output} expand to the output path")
	flags.String("missing-ts", "", "Records without ts_ms: zero or reject")
	flags.Bool("no-wait", false, "Start the tracker without waiting for it to exit")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	flags.String("ledger-dir", "", "Record the run in runs.db under this directory")
	flags.Bool("no-ledger", false, "Do not record the run even if a ledger is configured")
	flags.String("decision-trace", "", "Write per-record decisions as JSONL (debug or trace level)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newRunsCmd(),
		newReplayCmd(),
	)
	return rootCmd
}

// loadConfig loads the layered configuration: defaults, file, environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &usageError{err: err}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, nil
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("mode") {
		s, _ := f.GetString("mode")
		mode, err := impair.ParseMode(s)
		if err != nil {
			return &usageError{err: err}
		}
		cfg.Impairment.Mode = string(mode)
	}
	if f.Changed("lag-ms") {
		cfg.Impairment.LagMS, _ = f.GetFloat64("lag-ms")
	}
	if f.Changed("sigma-ms") {
		cfg.Impairment.SigmaMS, _ = f.GetFloat64("sigma-ms")
	}
	if f.Changed("drop-p") {
		cfg.Impairment.DropP, _ = f.GetFloat64("drop-p")
	}
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		cfg.Impairment.Seed = &seed
	}
	if f.Changed("tracker-cmd") {
		cfg.Dispatch.TrackerCmd, _ = f.GetString("tracker-cmd")
	}
	if f.Changed("no-wait") {
		cfg.Dispatch.NoWait, _ = f.GetBool("no-wait")
	}
	if f.Changed("missing-ts") {
		cfg.Loader.MissingTimestamp, _ = f.GetString("missing-ts")
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.TextfilePath, _ = f.GetString("metrics-file")
	}
	if f.Changed("ledger-dir") {
		cfg.Ledger.Dir, _ = f.GetString("ledger-dir")
	}
	if noLedger, _ := f.GetBool("no-ledger"); noLedger {
		cfg.Ledger.Dir = ""
	}
	if f.Changed("decision-trace") {
		cfg.Logging.DecisionTrace, _ = f.GetString("decision-trace")
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}
	return nil
}

func runImpair(cmd *cobra.Command, _ []string) error {
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	if input == "" || output == "" {
		return usagef("--input and --output are required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

	runner := dispatch.NewShellRunner()
	runner.NoWait = cfg.Dispatch.NoWait
	p := &pipeline.Pipeline{Logger: logger, Runner: runner}

	if cfg.Ledger.Dir != "" {
		l, err := ledger.Open(cfg.Ledger.Dir)
		if err != nil {
			return err
		}
		defer l.Close()
		p.Ledger = l
	}

	summary, err := p.Run(cmd.Context(), pipeline.Options{
		Input:            input,
		Output:           output,
		Impairment:       cfg.ImpairConfig(),
		MissingTimestamp: record.MissingTimestamp(cfg.Loader.MissingTimestamp),
		TrackerCmd:       cfg.Dispatch.TrackerCmd,
		MetricsFile:      cfg.Metrics.TextfilePath,
		DecisionTrace:    cfg.Logging.DecisionTrace,
		TraceLevel:       cfg.Logging.Level,
	})
	if summary != nil {
		printSummary(cmd, summary)
	}
	return err
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		json.NewEncoder(out).Encode(s)
		return
	}
	fmt.Fprintln(out, s.Line())
	if s.Mode == impair.ModeJitter && !s.Seeded {
		fmt.Fprintf(out, "Seed: %d (not requested; pass --seed %d to reproduce)\n", s.Seed, s.Seed)
	}
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
