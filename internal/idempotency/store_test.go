package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func timeNowFixed() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReserveStateMachine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("first reserve executes, second is pending", func(t *testing.T) {
		first, err := store.Reserve(ctx, "k1", "pages.create", "h1")
		require.NoError(t, err)
		require.Equal(t, OutcomeExecute, first.Outcome)

		second, err := store.Reserve(ctx, "k1", "pages.create", "h1")
		require.NoError(t, err)
		require.Equal(t, OutcomePending, second.Outcome)
	})

	t.Run("different hash conflicts and never executes", func(t *testing.T) {
		decision, err := store.Reserve(ctx, "k1", "pages.create", "h2")
		require.NoError(t, err)
		require.Equal(t, OutcomeConflict, decision.Outcome)
		require.Equal(t, "h1", decision.StoredHash)
	})

	t.Run("same key under another command is independent", func(t *testing.T) {
		decision, err := store.Reserve(ctx, "k1", "pages.update", "h1")
		require.NoError(t, err)
		require.Equal(t, OutcomeExecute, decision.Outcome)
	})
}

func TestCompleteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k1", "pages.create", "h1")
	require.NoError(t, err)

	response := json.RawMessage(`{"id":"page-123","url":"https://example.test/p"}`)
	require.NoError(t, store.Complete(ctx, "k1", "pages.create", "h1", response))

	t.Run("lookup replays the exact stored response", func(t *testing.T) {
		decision, err := store.Lookup(ctx, "k1", "pages.create", "h1")
		require.NoError(t, err)
		require.Equal(t, OutcomeReplay, decision.Outcome)
		require.JSONEq(t, string(response), string(decision.Response))
	})

	t.Run("reserve after completion replays too", func(t *testing.T) {
		decision, err := store.Reserve(ctx, "k1", "pages.create", "h1")
		require.NoError(t, err)
		require.Equal(t, OutcomeReplay, decision.Outcome)
		require.JSONEq(t, string(response), string(decision.Response))
	})
}

func TestCompleteWithoutReservation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Complete(ctx, "missing", "pages.create", "h1", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrMissingReservation)
}

func TestCompleteRequiresMatchingHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k1", "pages.create", "h1")
	require.NoError(t, err)

	err = store.Complete(ctx, "k1", "pages.create", "other-hash", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrMissingReservation)
}

func TestReleaseAllowsRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k1", "pages.create", "h1")
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "k1", "pages.create", "h1"))

	decision, err := store.Reserve(ctx, "k1", "pages.create", "h1")
	require.NoError(t, err)
	require.Equal(t, OutcomeExecute, decision.Outcome, "released key is claimable again")

	t.Run("release ignores completed records", func(t *testing.T) {
		require.NoError(t, store.Complete(ctx, "k1", "pages.create", "h1", json.RawMessage(`{}`)))
		require.NoError(t, store.Release(ctx, "k1", "pages.create", "h1"))

		decision, err := store.Lookup(ctx, "k1", "pages.create", "h1")
		require.NoError(t, err)
		require.Equal(t, OutcomeReplay, decision.Outcome, "completed record survives release")
	})
}

func TestLookupMissingRecord(t *testing.T) {
	store := newTestStore(t)

	decision, err := store.Lookup(context.Background(), "nope", "pages.create", "h1")
	require.NoError(t, err)
	require.Equal(t, OutcomeExecute, decision.Outcome)
}

func TestRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k1", "pages.create", "h1")
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "k2", "pages.update", "h2")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "k2", "pages.update", "h2", json.RawMessage(`{"id":"p1"}`)))
	_, err = store.Reserve(ctx, "k3", "blocks.insert", "h3")
	require.NoError(t, err)

	t.Run("lists everything", func(t *testing.T) {
		records, err := store.Records(ctx, nil, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
	})

	t.Run("filters by command", func(t *testing.T) {
		records, err := store.Records(ctx, []string{"pages.create", "pages.update"}, 0)
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, rec := range records {
			require.NotEqual(t, "blocks.insert", rec.Command)
		}
	})

	t.Run("reports state and hash", func(t *testing.T) {
		records, err := store.Records(ctx, []string{"pages.update"}, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, StateCompleted, records[0].State)
		require.Equal(t, "h2", records[0].InputHash)
		require.False(t, records[0].CreatedAt.IsZero())
	})

	t.Run("honors limit", func(t *testing.T) {
		records, err := store.Records(ctx, nil, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
	})

	t.Run("empty filter matches nothing", func(t *testing.T) {
		records, err := store.Records(ctx, []string{"no.such.command"}, 0)
		require.NoError(t, err)
		require.Empty(t, records)
	})
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k1", "pages.create", "h1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "k1", "pages.create", "h1", json.RawMessage(`{}`)))
	_, err = store.Reserve(ctx, "k2", "pages.create", "h2")
	require.NoError(t, err)

	pruned, err := store.Prune(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, pruned)

	records, err := store.Records(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, StatePending, records[0].State, "pending reservations survive pruning")

	pruned, err = store.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, pruned, "nothing older than the cutoff")
}
