package impair

import (
	"math/rand/v2"
)

// pcgStream is the fixed PCG stream selector; only the seed varies between runs.
const pcgStream = 0x9e3779b97f4a7c15

// Source is an explicit pseudorandom generator threaded into the jitter model.
// It is not safe for concurrent use.
type Source struct {
	seed   int64
	seeded bool
	pcg    *rand.PCG
	rng    *rand.Rand
}

// NewSource returns a generator for seed. With a nil seed a fresh seed is
// drawn from the runtime's entropy; such runs are not reproducible unless the
// reported Seed is passed back in.
func NewSource(seed *int64) *Source {
	s := &Source{}
	if seed != nil {
		s.seed = *seed
		s.seeded = true
	} else {
		s.seed = rand.Int64()
	}
	s.pcg = rand.NewPCG(uint64(s.seed), pcgStream)
	s.rng = rand.New(s.pcg)
	return s
}

// Seed returns the seed in use, whether supplied or drawn.
func (s *Source) Seed() int64 { return s.seed }

// Seeded reports whether the seed was supplied by the caller.
func (s *Source) Seeded() bool { return s.seeded }

// Float64 draws a uniform value in [0,1).
func (s *Source) Float64() float64 { return s.rng.Float64() }

// Uint64 implements rand.Source so distributions can draw from the same stream.
func (s *Source) Uint64() uint64 { return s.pcg.Uint64() }
