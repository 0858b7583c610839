// Package tsmr implements time-stamped measurement replay: a fixed-capacity
// ring of detection records that a consumer fills in arrival order, corrects
// retroactively and drains by timestamp.
package tsmr

import (
	"errors"

	"github.com/nvandessel/impairsim/internal/record"
)

// ErrZeroCapacity is returned by NewRing for a zero or negative capacity.
var ErrZeroCapacity = errors.New("tsmr: capacity must be positive")

// Ring is a fixed-capacity circular buffer of records. When full, Push
// overwrites the oldest record. Not safe for concurrent use.
type Ring struct {
	buf  []record.Record
	head int // index of next write
	len  int
}

// NewRing allocates a ring holding up to capacity records.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrZeroCapacity
	}
	return &Ring{buf: make([]record.Record, capacity)}, nil
}

// Len returns the number of stored records.
func (r *Ring) Len() int { return r.len }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) start() int {
	return (r.head + len(r.buf) - r.len) % len(r.buf)
}

func (r *Ring) at(i int) int {
	return (r.start() + i) % len(r.buf)
}

// Push appends rec. If the ring was full, the overwritten oldest record is
// returned with evicted=true.
func (r *Ring) Push(rec record.Record) (old record.Record, evicted bool) {
	if r.len == len(r.buf) {
		old, evicted = r.buf[r.head], true
	}
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)
	if r.len < len(r.buf) {
		r.len++
	}
	return old, evicted
}

// FindByTimestamp returns the oldest stored record with exactly ts.
func (r *Ring) FindByTimestamp(ts int64) (record.Record, bool) {
	for i := 0; i < r.len; i++ {
		if rec := r.buf[r.at(i)]; rec.Timestamp == ts {
			return rec, true
		}
	}
	return record.Record{}, false
}

// ApplyCorrection replaces the oldest stored record matching corr's
// timestamp and track ID. It reports whether a record was replaced.
func (r *Ring) ApplyCorrection(corr record.Record) bool {
	id := corr.Detection().TrackID
	for i := 0; i < r.len; i++ {
		idx := r.at(i)
		if r.buf[idx].Timestamp == corr.Timestamp && r.buf[idx].Detection().TrackID == id {
			r.buf[idx] = corr
			return true
		}
	}
	return false
}

// PopOlderThan removes and returns the contiguous run of oldest records whose
// timestamp is below ts, stopping at the first record that is not. At most
// max records are popped; max <= 0 means no limit.
func (r *Ring) PopOlderThan(ts int64, max int) []record.Record {
	var out []record.Record
	for r.len > 0 && (max <= 0 || len(out) < max) {
		idx := r.start()
		if r.buf[idx].Timestamp >= ts {
			break
		}
		out = append(out, r.buf[idx])
		r.buf[idx] = record.Record{}
		r.len--
	}
	return out
}

// PopAll removes and returns every stored record, oldest first.
func (r *Ring) PopAll() []record.Record {
	out := make([]record.Record, 0, r.len)
	for r.len > 0 {
		idx := r.start()
		out = append(out, r.buf[idx])
		r.buf[idx] = record.Record{}
		r.len--
	}
	return out
}
