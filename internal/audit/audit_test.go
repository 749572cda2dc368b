package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRead(t *testing.T) {
	logger := New(t.TempDir(), true)

	require.NoError(t, logger.Record(Event{
		Command:        "pages update",
		RequestID:      "req-1",
		IdempotencyKey: "key-1",
		TargetIDs:      []string{"page-1"},
		OK:             true,
	}))
	require.NoError(t, logger.Record(Event{
		Command:   "blocks insert",
		RequestID: "req-2",
		OK:        false,
	}))

	events, err := logger.Read()
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "pages update", events[0].Command)
	require.Equal(t, "key-1", events[0].IdempotencyKey)
	require.Equal(t, []string{"page-1"}, events[0].TargetIDs)
	require.True(t, events[0].OK)
	require.False(t, events[0].Timestamp.IsZero(), "a missing timestamp is filled in")

	require.Equal(t, "blocks insert", events[1].Command)
	require.False(t, events[1].OK)
}

func TestReadSince(t *testing.T) {
	logger := New(t.TempDir(), true)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)} {
		require.NoError(t, logger.Record(Event{
			Timestamp: ts,
			Command:   "pages update",
			RequestID: string(rune('a' + i)),
			OK:        true,
		}))
	}

	events, err := logger.ReadSince(base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2, "cutoff is inclusive")
	require.Equal(t, "b", events[0].RequestID)
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	dir := t.TempDir()
	logger := New(dir, false)

	require.False(t, logger.Enabled())
	require.NoError(t, logger.Record(Event{Command: "pages update"}))

	events, err := logger.Read()
	require.NoError(t, err)
	require.Nil(t, events)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "nothing is written when disabled")
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	logger := New(dir, true)
	require.NoError(t, logger.Record(Event{Command: "pages update", OK: true}))

	f, err := os.OpenFile(filepath.Join(dir, "audit.log"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, logger.Record(Event{Command: "blocks insert", OK: true}))

	events, err := logger.Read()
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestReadMissingFile(t *testing.T) {
	logger := New(t.TempDir(), true)

	events, err := logger.Read()
	require.NoError(t, err)
	require.Nil(t, events)
}
