// Package pipeline runs the impairment pipeline end to end:
// Load -> Impair -> Reorder -> Write -> optional Dispatch.
//
// Stages run strictly in sequence; each starts only after the previous one
// has materialized its full output.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/impairsim/internal/dispatch"
	"github.com/nvandessel/impairsim/internal/impair"
	"github.com/nvandessel/impairsim/internal/ledger"
	"github.com/nvandessel/impairsim/internal/logging"
	"github.com/nvandessel/impairsim/internal/metrics"
	"github.com/nvandessel/impairsim/internal/pathutil"
	"github.com/nvandessel/impairsim/internal/record"
)

// RunRecorder persists a finished run.
type RunRecorder interface {
	Record(ctx context.Context, r ledger.Run) error
}

// Options describes one pipeline run.
type Options struct {
	Input  string
	Output string

	Impairment       impair.Config
	MissingTimestamp record.MissingTimestamp

	// TrackerCmd is the consumer command template. Empty skips dispatch.
	TrackerCmd string

	// MetricsFile receives a Prometheus textfile. Empty skips export.
	MetricsFile string

	// DecisionTrace receives per-record decisions when TraceLevel is debug or trace.
	DecisionTrace string
	TraceLevel    string
}

// Pipeline holds the collaborators shared across runs.
type Pipeline struct {
	Logger *slog.Logger
	// Runner executes the consumer command. Required when TrackerCmd is set.
	Runner dispatch.Runner
	// Ledger records runs when non-nil.
	Ledger RunRecorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// DispatchResult describes the consumer invocation.
type DispatchResult struct {
	Cmdline  string `json:"cmdline"`
	ExitCode int    `json:"exit_code"`
}

// Summary reports a completed run.
type Summary struct {
	RunID      string             `json:"run_id"`
	Input      string             `json:"input"`
	Output     string             `json:"output"`
	Mode       impair.Mode        `json:"mode"`
	Seed       int64              `json:"seed,omitempty"`
	Seeded     bool               `json:"seeded"`
	RecordsIn  int                `json:"records_in"`
	RecordsOut int                `json:"records_out"`
	Dropped    int                `json:"dropped"`
	Offsets    impair.OffsetStats `json:"offsets"`
	SHA256     string             `json:"output_sha256"`
	Dispatch   *DispatchResult    `json:"dispatch,omitempty"`
	Duration   time.Duration      `json:"duration_ns"`
}

// Line is the one-line human-readable completion message.
func (s *Summary) Line() string {
	return fmt.Sprintf("Wrote impaired replay to %s (mode=%s)", s.Output, s.Mode)
}

// Run executes the pipeline. On failure the returned error carries an exit
// code (see ExitCode). A Summary is returned whenever the output was written,
// including when dispatch failed afterwards.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := p.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	cfg := opts.Impairment
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: KindConfig, Err: err}
	}
	if opts.MissingTimestamp != "" && !opts.MissingTimestamp.Valid() {
		return nil, &Error{Kind: KindConfig, Err: fmt.Errorf("invalid missing timestamp policy %q", opts.MissingTimestamp)}
	}
	if opts.TrackerCmd != "" && p.Runner == nil {
		return nil, &Error{Kind: KindConfig, Err: fmt.Errorf("tracker command set but no process runner configured")}
	}

	if same, err := pathutil.SameFile(opts.Input, opts.Output); err != nil {
		return nil, &Error{Kind: KindConfig, Err: err}
	} else if same {
		return nil, &Error{Kind: KindConfig, Err: fmt.Errorf("output %s would overwrite the input", pathutil.RedactPath(opts.Output))}
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	// Load
	seq, err := record.Load(opts.Input, record.ReaderOptions{MissingTimestamp: opts.MissingTimestamp})
	if err != nil {
		return nil, ClassifyLoad(err)
	}
	logger.Debug("loaded input", "path", opts.Input, "records", len(seq))

	// Impair
	var src *impair.Source
	if cfg.Mode == impair.ModeJitter {
		src = impair.NewSource(cfg.Seed)
		if !src.Seeded() {
			logger.Info("no seed supplied; jitter is not reproducible", "drawn_seed", src.Seed())
		}
	}
	decisions := logging.NewDecisionLogger(opts.DecisionTrace, opts.TraceLevel, runID)
	defer decisions.Close()

	model, err := impair.New(cfg, src, traceTo(ctx, logger, decisions))
	if err != nil {
		return nil, &Error{Kind: KindConfig, Err: err}
	}
	res := model.Apply(seq)
	logger.Debug("applied impairment", "config", cfg.String(), "survivors", len(res.Records), "dropped", res.Dropped)

	// Reorder
	out := impair.Reorder(res.Records)

	// Write
	wr, err := record.WriteFile(opts.Output, out)
	if err != nil {
		return nil, &Error{Kind: KindWrite, Err: err}
	}

	summary := &Summary{
		RunID:      runID,
		Input:      opts.Input,
		Output:     opts.Output,
		Mode:       cfg.Mode,
		RecordsIn:  len(seq),
		RecordsOut: len(out),
		Dropped:    res.Dropped,
		Offsets:    impair.Summarize(res.Offsets),
		SHA256:     wr.SHA256,
	}
	if src != nil {
		summary.Seed = src.Seed()
		summary.Seeded = src.Seeded()
	}
	logger.Info("wrote impaired replay", "path", opts.Output, "records", len(out), "dropped", res.Dropped)

	// Dispatch
	var runErr error
	if opts.TrackerCmd != "" {
		d := &dispatch.Dispatcher{Template: opts.TrackerCmd, Runner: p.Runner}
		cmdline, err := d.Dispatch(ctx, opts.Output)
		summary.Dispatch = &DispatchResult{Cmdline: cmdline}
		logger.Info("invoked tracker", "cmd", cmdline)
		if err != nil {
			runErr = classifyDispatch(err)
			summary.Dispatch.ExitCode = ExitCode(runErr)
			logger.Error("tracker failed", "error", err)
		}
	}

	finished := now()
	summary.Duration = finished.Sub(started)

	if err := p.recordRun(ctx, opts, cfg, summary, started); err != nil && runErr == nil {
		runErr = &Error{Kind: KindRecord, Err: err}
	}
	if err := exportMetrics(opts, summary, res.Offsets, started, finished); err != nil && runErr == nil {
		runErr = &Error{Kind: KindRecord, Err: err}
	}

	return summary, runErr
}

// traceTo forwards model decisions to the decision trace and the trace-level log.
func traceTo(ctx context.Context, logger *slog.Logger, decisions *logging.DecisionLogger) impair.TraceFunc {
	traceLog := logger.Enabled(ctx, logging.LevelTrace)
	if decisions == nil && !traceLog {
		return nil
	}
	return func(d impair.Decision) {
		event := "shift"
		if d.Dropped {
			event = "drop"
		}
		decisions.Log(map[string]any{
			"event":   event,
			"index":   d.Index,
			"before":  d.Before,
			"after":   d.After,
			"uniform": d.Uniform,
			"noise":   d.Noise,
		})
		if traceLog {
			logger.Log(ctx, logging.LevelTrace, "impairment decision",
				"event", event, "index", d.Index, "before", d.Before, "after", d.After)
		}
	}
}

func (p *Pipeline) recordRun(ctx context.Context, opts Options, cfg impair.Config, s *Summary, started time.Time) error {
	if p.Ledger == nil {
		return nil
	}
	run := ledger.Run{
		ID:             s.RunID,
		CreatedAt:      started,
		Input:          opts.Input,
		Output:         opts.Output,
		Mode:           string(cfg.Mode),
		LagMS:          cfg.LagMS,
		SigmaMS:        cfg.SigmaMS,
		DropP:          cfg.DropP,
		Seed:           s.Seed,
		Seeded:         s.Seeded,
		RecordsIn:      s.RecordsIn,
		RecordsOut:     s.RecordsOut,
		Dropped:        s.Dropped,
		OffsetMeanMS:   s.Offsets.Mean,
		OffsetStdDevMS: s.Offsets.StdDev,
		OutputSHA256:   s.SHA256,
		TrackerCmd:     opts.TrackerCmd,
		DurationMS:     s.Duration.Milliseconds(),
	}
	if s.Dispatch != nil {
		run.ExitCode = s.Dispatch.ExitCode
	}
	if err := p.Ledger.Record(ctx, run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

func exportMetrics(opts Options, s *Summary, offsets []int64, started, finished time.Time) error {
	if opts.MetricsFile == "" {
		return nil
	}
	m := metrics.New(string(s.Mode))
	m.RecordsIn.Add(float64(s.RecordsIn))
	m.RecordsOut.Add(float64(s.RecordsOut))
	m.RecordsDropped.Add(float64(s.Dropped))
	m.ObserveOffsets(offsets)
	if s.Dispatch != nil {
		m.DispatchExit.Set(float64(s.Dispatch.ExitCode))
	}
	m.Finish(started, finished)
	return m.WriteTextfile(opts.MetricsFile)
}
