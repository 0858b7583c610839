package tsmr

import (
	"fmt"
	"math"

	"github.com/nvandessel/impairsim/internal/record"
)

// ReplayConfig parameterizes a Replayer.
type ReplayConfig struct {
	// Capacity bounds the number of buffered records.
	Capacity int
	// WindowMS is how far behind the newest arrival a record may be before
	// it is released.
	WindowMS int64
}

// ReplayStats counts what happened to an arrival stream.
type ReplayStats struct {
	Arrived     int `json:"arrived"`
	Emitted     int `json:"emitted"`
	Late        int `json:"late"`
	Evicted     int `json:"evicted"`
	Corrections int `json:"corrections"`
}

// Replayer feeds an arrival-ordered stream through a Ring the way a bounded
// consumer would: each arrival advances a release watermark of
// arrival_ts - WindowMS, and buffered records below it are emitted.
type Replayer struct {
	cfg       ReplayConfig
	ring      *Ring
	watermark int64
	stats     ReplayStats
}

// NewReplayer validates cfg and allocates the buffer.
func NewReplayer(cfg ReplayConfig) (*Replayer, error) {
	if cfg.WindowMS < 0 {
		return nil, fmt.Errorf("tsmr: window must be >= 0, got %d", cfg.WindowMS)
	}
	ring, err := NewRing(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	return &Replayer{cfg: cfg, ring: ring, watermark: math.MinInt64}, nil
}

// Feed processes one arrival and returns the records it releases.
//
// An arrival whose timestamp and track ID match a buffered record replaces it
// as a correction. An arrival below the watermark counts as late. A push into
// a full ring evicts the oldest buffered record, which is lost.
func (p *Replayer) Feed(rec record.Record) []record.Record {
	p.stats.Arrived++
	if rec.Timestamp < p.watermark {
		p.stats.Late++
	}

	if p.ring.ApplyCorrection(rec) {
		p.stats.Corrections++
	} else if _, evicted := p.ring.Push(rec); evicted {
		p.stats.Evicted++
	}

	if bound := rec.Timestamp - p.cfg.WindowMS; bound > p.watermark {
		p.watermark = bound
	}
	out := p.ring.PopOlderThan(p.watermark, 0)
	p.stats.Emitted += len(out)
	return out
}

// Drain releases every buffered record.
func (p *Replayer) Drain() []record.Record {
	out := p.ring.PopAll()
	p.stats.Emitted += len(out)
	return out
}

// Stats returns the counters so far.
func (p *Replayer) Stats() ReplayStats { return p.stats }

// Replay runs seq through a new Replayer and passes released records to emit.
func Replay(seq []record.Record, cfg ReplayConfig, emit func(record.Record) error) (ReplayStats, error) {
	p, err := NewReplayer(cfg)
	if err != nil {
		return ReplayStats{}, err
	}
	for _, rec := range seq {
		for _, out := range p.Feed(rec) {
			if err := emit(out); err != nil {
				return p.Stats(), err
			}
		}
	}
	for _, out := range p.Drain() {
		if err := emit(out); err != nil {
			return p.Stats(), err
		}
	}
	return p.Stats(), nil
}
