package impair

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// OffsetStats summarizes the timestamp offsets applied to surviving records.
type OffsetStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
}

// Summarize computes offset statistics. StdDev is the sample standard
// deviation and is zero for fewer than two offsets.
func Summarize(offsets []int64) OffsetStats {
	if len(offsets) == 0 {
		return OffsetStats{}
	}
	xs := make([]float64, len(offsets))
	for i, o := range offsets {
		xs[i] = float64(o)
	}
	s := OffsetStats{
		Count: len(xs),
		Min:   floats.Min(xs),
		Max:   floats.Max(xs),
	}
	if len(xs) < 2 {
		s.Mean = xs[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	return s
}
