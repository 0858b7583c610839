package impair

import (
	"cmp"
	"slices"

	"github.com/nvandessel/impairsim/internal/record"
)

// Reorder stable-sorts seq in place by timestamp ascending and returns it.
// Records with equal timestamps keep their relative order, modelling the
// arrival order a downstream consumer observes.
func Reorder(seq []record.Record) []record.Record {
	slices.SortStableFunc(seq, func(a, b record.Record) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return seq
}

// IsOrdered reports whether seq is non-decreasing by timestamp.
func IsOrdered(seq []record.Record) bool {
	return slices.IsSortedFunc(seq, func(a, b record.Record) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
}
