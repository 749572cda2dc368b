package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T) (*Pipeline, *Store) {
	t.Helper()
	store := newTestStore(t)
	p := NewPipeline(store, nil)
	p.now = timeNowFixed
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p, store
}

func TestPipelineExecutesOnceAndReplays(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	shape := map[string]any{"title": "hello"}

	executions := 0
	unit := func(ctx context.Context) (json.RawMessage, []string, error) {
		executions++
		return json.RawMessage(`{"id":"p1"}`), []string{"p1"}, nil
	}

	first, err := p.Run(ctx, "pages.create", shape, unit)
	require.NoError(t, err)
	require.False(t, first.Replayed)
	require.JSONEq(t, `{"id":"p1"}`, string(first.Response))

	second, err := p.Run(ctx, "pages.create", shape, unit)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.JSONEq(t, `{"id":"p1"}`, string(second.Response))

	require.Equal(t, 1, executions, "duplicate invocation must not re-execute")
}

func TestPipelineReplaysAcrossKeyOrdering(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	executions := 0
	unit := func(ctx context.Context) (json.RawMessage, []string, error) {
		executions++
		return json.RawMessage(`{"ok":true}`), nil, nil
	}

	_, err := p.Run(ctx, "pages.update", map[string]any{"a": 1, "b": 2}, unit)
	require.NoError(t, err)
	result, err := p.Run(ctx, "pages.update", map[string]any{"b": 2, "a": 1}, unit)
	require.NoError(t, err)

	require.True(t, result.Replayed)
	require.Equal(t, 1, executions)
}

func TestPipelineKeyCollision(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	shape := map[string]any{"title": "hello"}

	key, _, err := DeriveKey("pages.create", shape, timeNowFixed())
	require.NoError(t, err)

	// Another request already holds the key with a different input hash.
	_, err = store.Reserve(ctx, key, "pages.create", "some-other-hash")
	require.NoError(t, err)

	executed := false
	_, err = p.Run(ctx, "pages.create", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
		executed = true
		return nil, nil, nil
	})

	var conflict *KeyConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "some-other-hash", conflict.StoredHash)
	require.NotEqual(t, conflict.StoredHash, conflict.InputHash)
	require.False(t, executed, "conflicting request must never execute")
}

func TestPipelineFailureReleasesReservation(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	shape := map[string]any{"title": "flaky"}

	boom := errors.New("upstream exploded")
	_, err := p.Run(ctx, "pages.create", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
		return nil, nil, boom
	})
	require.ErrorIs(t, err, boom)

	// The failed attempt must not poison the key: a retry re-executes.
	result, err := p.Run(ctx, "pages.create", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
		return json.RawMessage(`{"id":"p2"}`), []string{"p2"}, nil
	})
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.JSONEq(t, `{"id":"p2"}`, string(result.Response))
}

func TestPipelinePendingDeadline(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	shape := map[string]any{"title": "stuck"}

	key, inputHash, err := DeriveKey("pages.create", shape, timeNowFixed())
	require.NoError(t, err)
	_, err = store.Reserve(ctx, key, "pages.create", inputHash)
	require.NoError(t, err)

	// Advance the fake clock a poll at a time past the deadline.
	current := timeNowFixed()
	p.now = func() time.Time { return current }
	p.sleep = func(ctx context.Context, d time.Duration) error {
		current = current.Add(5 * time.Second)
		return nil
	}

	_, err = p.Run(ctx, "pages.create", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
		t.Fatal("must not execute while another owner is pending")
		return nil, nil, nil
	})

	var inProgress *InProgressError
	require.ErrorAs(t, err, &inProgress)
	require.Equal(t, key, inProgress.Key)
}

func TestPipelinePendingResolvesToReplay(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	shape := map[string]any{"title": "slow"}

	key, inputHash, err := DeriveKey("pages.create", shape, timeNowFixed())
	require.NoError(t, err)
	_, err = store.Reserve(ctx, key, "pages.create", inputHash)
	require.NoError(t, err)

	// The concurrent owner completes during the first poll sleep.
	p.sleep = func(ctx context.Context, d time.Duration) error {
		return store.Complete(ctx, key, "pages.create", inputHash, json.RawMessage(`{"id":"p9"}`))
	}

	result, err := p.Run(ctx, "pages.create", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
		t.Fatal("owner's result must be replayed, not re-executed")
		return nil, nil, nil
	})
	require.NoError(t, err)
	require.True(t, result.Replayed)
	require.JSONEq(t, `{"id":"p9"}`, string(result.Response))
}

func TestPipelinePendingOwnerReleases(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	shape := map[string]any{"title": "abandoned"}

	key, inputHash, err := DeriveKey("pages.create", shape, timeNowFixed())
	require.NoError(t, err)
	_, err = store.Reserve(ctx, key, "pages.create", inputHash)
	require.NoError(t, err)

	// The owner gives up during the first poll sleep; this invocation
	// should claim the key and execute.
	released := false
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if !released {
			released = true
			return store.Release(ctx, key, "pages.create", inputHash)
		}
		return nil
	}

	result, err := p.Run(ctx, "pages.create", shape, func(ctx context.Context) (json.RawMessage, []string, error) {
		return json.RawMessage(`{"id":"p3"}`), []string{"p3"}, nil
	})
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.JSONEq(t, `{"id":"p3"}`, string(result.Response))
}
