// Package impair applies simulated timing degradation to a sequence of
// detection records and re-establishes arrival order.
//
// Two strategies are available. Fixed lag shifts every timestamp by a
// constant. Jitter with dropout discards each record with probability DropP
// and perturbs survivors with zero-mean Gaussian noise. Randomness always
// comes from an explicit *Source; there is no package-level generator.
package impair

import (
	"fmt"
	"math"
)

// Mode selects an impairment strategy.
type Mode string

const (
	// ModeLag adds a constant latency to every record.
	ModeLag Mode = "lag"
	// ModeJitter drops records at random and perturbs the rest.
	ModeJitter Mode = "jitter"
)

// Defaults matching the command line.
const (
	DefaultLagMS   = 50.0
	DefaultSigmaMS = 20.0
	DefaultDropP   = 0.05
)

// MaxOffsetMS bounds |lag_ms| and sigma_ms (about 31 years).
const MaxOffsetMS = 1e12

// ParseMode maps a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLag, ModeJitter:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q (valid: lag, jitter)", s)
	}
}

// Config is the immutable impairment configuration chosen at pipeline start.
// LagMS is used only in lag mode; SigmaMS and DropP only in jitter mode.
type Config struct {
	Mode    Mode
	LagMS   float64
	SigmaMS float64
	DropP   float64
	// Seed makes jitter reproducible. Nil means a fresh random seed per run.
	Seed *int64
}

// DefaultConfig returns the lag-mode configuration with command-line defaults.
func DefaultConfig() Config {
	return Config{
		Mode:    ModeLag,
		LagMS:   DefaultLagMS,
		SigmaMS: DefaultSigmaMS,
		DropP:   DefaultDropP,
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if math.IsNaN(c.LagMS) || math.Abs(c.LagMS) > MaxOffsetMS {
		return fmt.Errorf("lag_ms must be within ±%g, got %v", MaxOffsetMS, c.LagMS)
	}
	if math.IsNaN(c.SigmaMS) || c.SigmaMS < 0 || c.SigmaMS > MaxOffsetMS {
		return fmt.Errorf("sigma_ms must be between 0 and %g, got %v", MaxOffsetMS, c.SigmaMS)
	}
	if math.IsNaN(c.DropP) || c.DropP < 0 || c.DropP > 1 {
		return fmt.Errorf("drop_p must be between 0 and 1, got %v", c.DropP)
	}
	return nil
}

// String renders the parameters relevant to the selected mode.
func (c Config) String() string {
	seed := "auto"
	if c.Seed != nil {
		seed = fmt.Sprint(*c.Seed)
	}
	if c.Mode == ModeLag {
		return fmt.Sprintf("mode=lag lag_ms=%g", c.LagMS)
	}
	return fmt.Sprintf("mode=%s sigma_ms=%g drop_p=%g seed=%s", c.Mode, c.SigmaMS, c.DropP, seed)
}
