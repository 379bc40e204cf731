package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_WindowAndExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStorage().WithClock(func() time.Time { return now })
	ctx := context.Background()
	key := RecencyKey("u1")

	for i := 1; i <= 4; i++ {
		require.NoError(t, store.PushAndTrim(ctx, key, turnN("u1", i), 3, time.Hour))
	}

	turns, err := store.GetAll(ctx, key)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, int64(2), turns[0].Sequence)
	assert.Equal(t, int64(4), turns[2].Sequence)

	now = now.Add(time.Hour)
	turns, err = store.GetAll(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, turns)

	n, err := store.DeleteKey(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStorage_SequenceIndependentOfWindow(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	seq, err := store.NextSequence(ctx, SequenceKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	require.NoError(t, store.PushAndTrim(ctx, RecencyKey("u1"), turnN("u1", 1), 10, time.Hour))
	n, err := store.DeleteKey(ctx, RecencyKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	seq, err = store.NextSequence(ctx, SequenceKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	seq, err = store.NextSequence(ctx, SequenceKey("u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestMemoryStorage_CancelledContext(t *testing.T) {
	store := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetAll(ctx, RecencyKey("u1"))
	assert.ErrorIs(t, err, context.Canceled)
}
