package record

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesFieldsAndOrder(t *testing.T) {
	line := []byte(`{"ts_ms": 1000, "id": -1, "x":0.10, "y":0.1, "w":0.02, "h":0.03, "score":0.85, "cls":"boat", "meta":{"cam": 2}}`)

	rec, err := Parse(line, MissingTimestampZero)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.Timestamp)
	assert.True(t, rec.HasTimestamp())

	out, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"ts_ms":1000,"id":-1,"x":0.10,"y":0.1,"w":0.02,"h":0.03,"score":0.85,"cls":"boat","meta":{"cam": 2}}`,
		string(out))
}

func TestParse_WithTimestampRewritesOnlyTimestamp(t *testing.T) {
	rec, err := Parse([]byte(`{"ts_ms":1000,"id":-1,"x":0.1,"y":0.1,"w":0.02,"h":0.03,"score":0.85}`), MissingTimestampZero)
	require.NoError(t, err)

	out, err := rec.WithTimestamp(1050).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"ts_ms":1050,"id":-1,"x":0.1,"y":0.1,"w":0.02,"h":0.03,"score":0.85}`, string(out))

	// The original value is untouched.
	assert.Equal(t, int64(1000), rec.Timestamp)
}

func TestParse_MissingTimestamp(t *testing.T) {
	line := []byte(`{"id":3,"x":0.5}`)

	rec, err := Parse(line, MissingTimestampZero)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Timestamp)
	assert.False(t, rec.HasTimestamp())

	out, err := rec.WithTimestamp(50).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":3,"x":0.5,"ts_ms":50}`, string(out))

	_, err = Parse(line, MissingTimestampReject)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing ts_ms")
}

func TestParse_KeysRoundTripByteIdentical(t *testing.T) {
	tests := []string{
		`{"ts_ms":1,"a<b":1,"é":2,"x\/y":3}`,
		`{"a&b":true,"ts_ms":7,"\u00e9t\u00e9":"ok"}`,
		`{"ts_ms":1,"q\"uote":null,"tab\t":[]}`,
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			rec, err := Parse([]byte(line), MissingTimestampZero)
			require.NoError(t, err)

			out, err := rec.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, line, string(out))
		})
	}
}

func TestParse_KeysWithWhitespaceAroundSeparators(t *testing.T) {
	rec, err := Parse([]byte("{ \"ts_ms\" : 3 ,\t\"a<b\" :1 }"), MissingTimestampZero)
	require.NoError(t, err)

	out, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"ts_ms":3,"a<b":1}`, string(out))
	assert.Equal(t, json.RawMessage(`1`), rec.Raw("a<b"))
}

func TestRecord_ZeroValue(t *testing.T) {
	var rec Record
	assert.False(t, rec.HasTimestamp())

	out, err := Record{Timestamp: 5}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"ts_ms":5}`, string(out))
}

func TestParse_FractionalTimestampTruncates(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`{"ts_ms":1000.9}`, 1000},
		{`{"ts_ms":-10.7}`, -10},
		{`{"ts_ms":1e3}`, 1000},
		{`{"ts_ms":1610000000000}`, 1610000000000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rec, err := Parse([]byte(tt.in), MissingTimestampZero)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Timestamp)
		})
	}
}

func TestParse_DuplicateKeysKeepFirstPositionLastValue(t *testing.T) {
	rec, err := Parse([]byte(`{"a":1,"ts_ms":5,"a":2}`), MissingTimestampZero)
	require.NoError(t, err)

	out, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"ts_ms":5}`, string(out))
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `not json`},
		{"array", `[1,2,3]`},
		{"number", `42`},
		{"truncated", `{"ts_ms":1`},
		{"trailing data", `{"ts_ms":1} {"ts_ms":2}`},
		{"string timestamp", `{"ts_ms":"1000"}`},
		{"null timestamp", `{"ts_ms":null}`},
		{"fractional id", `{"ts_ms":1,"id":1.5}`},
		{"string score", `{"ts_ms":1,"score":"high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.line), MissingTimestampZero)
			assert.Error(t, err)
		})
	}
}

func TestDetection(t *testing.T) {
	rec, err := Parse([]byte(`{"ts_ms":1,"id":7,"x":0.1,"y":0.2,"w":0.3,"h":0.4,"score":0.9}`), MissingTimestampZero)
	require.NoError(t, err)
	assert.Equal(t, Detection{TrackID: 7, X: 0.1, Y: 0.2, W: 0.3, H: 0.4, Score: 0.9}, rec.Detection())

	bare, err := Parse([]byte(`{"ts_ms":1}`), MissingTimestampZero)
	require.NoError(t, err)
	assert.Equal(t, int64(UnassignedTrackID), bare.Detection().TrackID)
}

func TestMissingTimestamp_Valid(t *testing.T) {
	assert.True(t, MissingTimestampZero.Valid())
	assert.True(t, MissingTimestampReject.Valid())
	assert.False(t, MissingTimestamp("skip").Valid())
}

func TestParseError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ParseError{Path: "in.jsonl", Line: 3, Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "in.jsonl:3: malformed record: boom", err.Error())
}
