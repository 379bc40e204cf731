package storage

import (
	"context"
	"convmem/pkg"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStorage(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func turnN(userID string, n int) pkg.Turn {
	return pkg.Turn{
		UserID:    userID,
		Username:  "alice",
		Message:   fmt.Sprintf("message %d", n),
		Response:  fmt.Sprintf("response %d", n),
		Intent:    "SEARCH_QUERY",
		CreatedAt: time.Date(2026, 1, 1, 12, n, 0, 0, time.UTC),
		Sequence:  int64(n),
	}
}

func TestNewRedisStorage_Errors(t *testing.T) {
	_, err := NewRedisStorage(context.Background(), "")
	require.Error(t, err)

	_, err = NewRedisStorage(context.Background(), "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse REDIS_URL")
}

func TestRedisStorage_PushTrimsToMaxLen(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()
	key := RecencyKey("u1")

	for i := 1; i <= 7; i++ {
		require.NoError(t, store.PushAndTrim(ctx, key, turnN("u1", i), 5, time.Hour))
	}

	turns, err := store.GetAll(ctx, key)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i, turn := range turns {
		assert.Equal(t, int64(i+3), turn.Sequence, "oldest first")
	}
	assert.Equal(t, "message 7", turns[4].Message)
	assert.True(t, turns[4].CreatedAt.Equal(time.Date(2026, 1, 1, 12, 7, 0, 0, time.UTC)))
}

func TestRedisStorage_TTLExpiresWindow(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()
	key := RecencyKey("u1")

	require.NoError(t, store.PushAndTrim(ctx, key, turnN("u1", 1), 50, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.PushAndTrim(ctx, key, turnN("u1", 2), 50, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(key), "push refreshes TTL")

	mr.FastForward(61 * time.Minute)
	turns, err := store.GetAll(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisStorage_DeleteKeyCounts(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()
	key := RecencyKey("u1")

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.PushAndTrim(ctx, key, turnN("u1", i), 50, time.Hour))
	}

	n, err := store.DeleteKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.DeleteKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisStorage_SequenceSurvivesDelete(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		seq, err := store.NextSequence(ctx, SequenceKey("u1"))
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	_, err := store.DeleteKey(ctx, RecencyKey("u1"))
	require.NoError(t, err)

	seq, err := store.NextSequence(ctx, SequenceKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
	assert.Zero(t, mr.TTL(SequenceKey("u1")))
}

func TestRedisStorage_SkipsMalformedEntries(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()
	key := RecencyKey("u1")

	require.NoError(t, store.PushAndTrim(ctx, key, turnN("u1", 1), 50, time.Hour))
	_, err := mr.Push(key, "{not json")
	require.NoError(t, err)

	turns, err := store.GetAll(ctx, key)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestRedisStorage_UnavailableWrapsSentinel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewRedisStorageFromClient(client)
	mr.Close()

	_, err := store.GetAll(context.Background(), RecencyKey("u1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecencyUnavailable)
}
