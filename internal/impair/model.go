package impair

import (
	"fmt"
	"math"

	"github.com/nvandessel/impairsim/internal/record"
	"gonum.org/v1/gonum/stat/distuv"
)

// Decision describes what a model did to one input record.
type Decision struct {
	// Index is the record's position in the model input.
	Index   int
	Before  int64
	After   int64
	Dropped bool
	// Uniform is the drop-decision draw (jitter mode only).
	Uniform float64
	// Noise is the raw Gaussian sample before truncation (jitter mode only).
	Noise float64
}

// TraceFunc observes each decision in record order.
type TraceFunc func(Decision)

// Result is the output of a model.
type Result struct {
	// Records holds the survivors in input order.
	Records []record.Record
	Dropped int
	// Offsets holds After-Before for each survivor, aligned with Records.
	Offsets []int64
}

// Model is an impairment strategy.
type Model interface {
	Mode() Mode
	Apply(seq []record.Record) Result
}

// New builds the model selected by cfg. src is required for jitter mode.
func New(cfg Config, src *Source, trace TraceFunc) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeLag:
		return &FixedLag{LagMS: cfg.LagMS, Trace: trace}, nil
	case ModeJitter:
		if src == nil {
			return nil, fmt.Errorf("jitter mode requires a random source")
		}
		return &JitterDropout{SigmaMS: cfg.SigmaMS, DropP: cfg.DropP, Source: src, Trace: trace}, nil
	}
	return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
}

// FixedLag models constant one-way latency: ts = trunc(ts + LagMS).
type FixedLag struct {
	LagMS float64
	Trace TraceFunc
}

// Mode implements Model.
func (m *FixedLag) Mode() Mode { return ModeLag }

// Apply implements Model. Cardinality is preserved exactly.
func (m *FixedLag) Apply(seq []record.Record) Result {
	res := Result{
		Records: make([]record.Record, len(seq)),
		Offsets: make([]int64, len(seq)),
	}
	for i, rec := range seq {
		ts := truncMS(float64(rec.Timestamp) + m.LagMS)
		res.Records[i] = rec.WithTimestamp(ts)
		res.Offsets[i] = ts - rec.Timestamp
		if m.Trace != nil {
			m.Trace(Decision{Index: i, Before: rec.Timestamp, After: ts})
		}
	}
	return res
}

// JitterDropout drops each record with probability DropP and adds
// trunc(N(0, SigmaMS)) to the survivors.
//
// Per record the source is consumed in a fixed order: one uniform draw for the
// drop decision, then one Gaussian draw only if the record survives.
type JitterDropout struct {
	SigmaMS float64
	DropP   float64
	Source  *Source
	Trace   TraceFunc
}

// Mode implements Model.
func (m *JitterDropout) Mode() Mode { return ModeJitter }

// Apply implements Model.
func (m *JitterDropout) Apply(seq []record.Record) Result {
	normal := distuv.Normal{Mu: 0, Sigma: m.SigmaMS, Src: m.Source}
	res := Result{
		Records: make([]record.Record, 0, len(seq)),
		Offsets: make([]int64, 0, len(seq)),
	}
	for i, rec := range seq {
		u := m.Source.Float64()
		if u < m.DropP {
			res.Dropped++
			if m.Trace != nil {
				m.Trace(Decision{Index: i, Before: rec.Timestamp, After: rec.Timestamp, Dropped: true, Uniform: u})
			}
			continue
		}
		noise := normal.Rand()
		delta := truncMS(noise)
		ts := addMS(rec.Timestamp, delta)
		res.Records = append(res.Records, rec.WithTimestamp(ts))
		res.Offsets = append(res.Offsets, ts-rec.Timestamp)
		if m.Trace != nil {
			m.Trace(Decision{Index: i, Before: rec.Timestamp, After: ts, Uniform: u, Noise: noise})
		}
	}
	return res
}

// truncMS truncates f toward zero, saturating at the int64 range.
func truncMS(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Trunc(f))
}

// addMS returns ts+delta, saturating at the int64 range.
func addMS(ts, delta int64) int64 {
	switch {
	case delta > 0 && ts > math.MaxInt64-delta:
		return math.MaxInt64
	case delta < 0 && ts < math.MinInt64-delta:
		return math.MinInt64
	}
	return ts + delta
}
