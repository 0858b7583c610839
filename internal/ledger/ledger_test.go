package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), ".impairsim"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordAndGet(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		ID:             "run-1",
		CreatedAt:      created,
		Input:          "in.jsonl",
		Output:         "out.jsonl",
		Mode:           "jitter",
		SigmaMS:        20,
		DropP:          0.05,
		Seed:           7,
		Seeded:         true,
		RecordsIn:      100,
		RecordsOut:     94,
		Dropped:        6,
		OffsetMeanMS:   0.4,
		OffsetStdDevMS: 19.8,
		OutputSHA256:   "abc123",
		TrackerCmd:     "tracker {input}",
		ExitCode:       0,
		DurationMS:     12,
	}
	require.NoError(t, l.Record(ctx, run))

	got, err := l.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, *got)
}

func TestLedger_GetMissing(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLedger_ListNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Record(ctx, Run{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Input:     "in",
			Output:    "out",
			Mode:      "lag",
			LagMS:     50,
		}))
	}

	all, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.False(t, all[0].Seeded)
	assert.Empty(t, all[0].TrackerCmd)

	limited, err := l.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLedger_DuplicateID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	run := Run{ID: "dup", CreatedAt: time.Now(), Input: "in", Output: "out", Mode: "lag"}
	require.NoError(t, l.Record(ctx, run))
	assert.Error(t, l.Record(ctx, run))
}

func TestOpen_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	ctx := context.Background()

	l, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, Run{ID: "x", CreatedAt: time.Now(), Input: "in", Output: "out", Mode: "lag"}))
	require.NoError(t, l.Close())

	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()

	runs, err := l.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, filepath.Join(dir, DBName), l.Path())
}
