// Package record models detection records as they flow through the
// impairment pipeline and provides the JSONL loader and writer for them.
//
// A Record keeps every input field as its original raw JSON bytes, in input
// order. Only the timestamp field is ever rewritten, so unknown fields and
// number formatting survive a load/write cycle unchanged.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Well-known field names of a detection record.
const (
	FieldTimestamp = "ts_ms"
	FieldTrackID   = "id"
	FieldX         = "x"
	FieldY         = "y"
	FieldW         = "w"
	FieldH         = "h"
	FieldScore     = "score"
)

// UnassignedTrackID marks a detection that has not been associated with a track.
const UnassignedTrackID = -1

// Field is one key of a record object with its raw JSON value.
type Field struct {
	Key   string
	Value json.RawMessage

	rawKey []byte // quoted key exactly as it appeared on input
}

// Record is a single timestamped detection observation.
type Record struct {
	// Timestamp is the record time in milliseconds. It may be negative after jitter.
	Timestamp int64

	fields []Field
	tsPos  int // 1-based position of ts_ms in fields, 0 when absent on input
}

// Detection is the typed view of the well-known record fields.
type Detection struct {
	TrackID int64
	X, Y    float64
	W, H    float64
	Score   float64
}

// Fields returns a copy of the record's fields in output order.
// The timestamp field reflects the current Timestamp.
func (r Record) Fields() []Field {
	out := make([]Field, 0, len(r.fields)+1)
	out = append(out, r.fields...)
	ts := json.RawMessage(strconv.FormatInt(r.Timestamp, 10))
	if r.tsPos > 0 {
		f := out[r.tsPos-1]
		f.Value = ts
		out[r.tsPos-1] = f
	} else {
		out = append(out, Field{Key: FieldTimestamp, Value: ts})
	}
	return out
}

// HasTimestamp reports whether ts_ms was present on input.
func (r Record) HasTimestamp() bool {
	return r.tsPos > 0
}

// Raw returns the original raw value of key, or nil if the record lacks it.
func (r Record) Raw(key string) json.RawMessage {
	for _, f := range r.fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// WithTimestamp returns a copy of r with its timestamp replaced.
// The field slice is shared; records are never mutated in place.
func (r Record) WithTimestamp(ts int64) Record {
	r.Timestamp = ts
	return r
}

// Detection decodes the well-known fields. Absent fields decode as zero,
// except TrackID which defaults to UnassignedTrackID.
func (r Record) Detection() Detection {
	d := Detection{TrackID: UnassignedTrackID}
	if raw := r.Raw(FieldTrackID); raw != nil {
		d.TrackID, _ = strconv.ParseInt(string(raw), 10, 64)
	}
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{FieldX, &d.X}, {FieldY, &d.Y}, {FieldW, &d.W}, {FieldH, &d.H}, {FieldScore, &d.Score},
	} {
		if raw := r.Raw(p.key); raw != nil {
			*p.dst, _ = strconv.ParseFloat(string(raw), 64)
		}
	}
	return d
}

// MarshalJSON encodes the record as a compact JSON object, preserving
// field order and the raw bytes of every key and value read from input.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := f.rawKey
		if key == nil {
			var err error
			if key, err = json.Marshal(f.Key); err != nil {
				return nil, err
			}
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MissingTimestamp selects how records without ts_ms are handled.
type MissingTimestamp string

const (
	// MissingTimestampZero loads the record at timestamp 0.
	MissingTimestampZero MissingTimestamp = "zero"
	// MissingTimestampReject fails the load.
	MissingTimestampReject MissingTimestamp = "reject"
)

// Valid reports whether m is a known policy.
func (m MissingTimestamp) Valid() bool {
	return m == MissingTimestampZero || m == MissingTimestampReject
}

var errMissingTimestamp = errors.New("missing " + FieldTimestamp)

// Parse decodes one JSON object line into a Record.
func Parse(line []byte, missing MissingTimestamp) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Record{}, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var rec Record
	index := make(map[string]int)
	for dec.More() {
		before := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("expected object key, got %v", tok)
		}
		rawKey := rawKeyAt(line, before, dec.InputOffset())
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, fmt.Errorf("field %q: %w", key, err)
		}
		if i, dup := index[key]; dup {
			rec.fields[i].Value = raw
			continue
		}
		index[key] = len(rec.fields)
		rec.fields = append(rec.fields, Field{Key: key, Value: raw, rawKey: rawKey})
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	if rest := bytes.TrimSpace(line[dec.InputOffset():]); len(rest) > 0 {
		return Record{}, errors.New("trailing data after JSON object")
	}

	if err := rec.checkTypes(); err != nil {
		return Record{}, err
	}

	if i, ok := index[FieldTimestamp]; ok {
		rec.tsPos = i + 1
		ts, err := parseTimestamp(rec.fields[i].Value)
		if err != nil {
			return Record{}, err
		}
		rec.Timestamp = ts
	} else if missing == MissingTimestampReject {
		return Record{}, errMissingTimestamp
	}
	return rec, nil
}

// rawKeyAt returns the quoted key literal that ends at end. Between the
// previous token and the key only whitespace and a comma can occur.
func rawKeyAt(line []byte, start, end int64) []byte {
	i := start
	for i < end && line[i] != '"' {
		i++
	}
	return bytes.Clone(line[i:end])
}

// checkTypes verifies the well-known fields carry the expected JSON types.
func (r Record) checkTypes() error {
	for _, f := range r.fields {
		switch f.Key {
		case FieldTrackID:
			if _, err := strconv.ParseInt(string(f.Value), 10, 64); err != nil {
				return fmt.Errorf("field %q: expected integer, got %s", f.Key, f.Value)
			}
		case FieldX, FieldY, FieldW, FieldH, FieldScore:
			if _, err := strconv.ParseFloat(string(f.Value), 64); err != nil {
				return fmt.Errorf("field %q: expected number, got %s", f.Key, f.Value)
			}
		}
	}
	return nil
}

// parseTimestamp reads an integer millisecond value, truncating fractions toward zero.
func parseTimestamp(raw json.RawMessage) (int64, error) {
	s := string(raw)
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("field %q: expected number, got %s", FieldTimestamp, raw)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("field %q: %s out of range", FieldTimestamp, raw)
	}
	return int64(math.Trunc(f)), nil
}
