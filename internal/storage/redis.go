package storage

import (
	"context"
	"convmem/pkg"
	"convmem/src/logger"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements RecencyStore on Redis lists
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(ctx context.Context, redisURL string) (*RedisStorage, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w: %w", ErrRecencyUnavailable, err)
	}

	return &RedisStorage{client: client}, nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// PushAndTrim runs RPUSH, LTRIM and EXPIRE in one MULTI/EXEC
func (r *RedisStorage) PushAndTrim(ctx context.Context, key string, turn pkg.Turn, maxLen int, ttl time.Duration) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxWindowSize
	}
	if ttl <= 0 {
		ttl = DefaultWindowTTL
	}

	data, err := encodeTurn(turn)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-maxLen), -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push turn: %w: %w", ErrRecencyUnavailable, err)
	}
	return nil
}

// GetAll returns the window oldest first. Entries that fail to decode are skipped.
func (r *RedisStorage) GetAll(ctx context.Context, key string) ([]pkg.Turn, error) {
	items, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []pkg.Turn{}, nil
		}
		return nil, fmt.Errorf("failed to load history: %w: %w", ErrRecencyUnavailable, err)
	}

	turns := make([]pkg.Turn, 0, len(items))
	for _, item := range items {
		turn, err := decodeTurn([]byte(item))
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Skipping malformed turn in recency window")
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// DeleteKey removes the window and reports how many entries it held
func (r *RedisStorage) DeleteKey(ctx context.Context, key string) (int, error) {
	var llen *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		llen = pipe.LLen(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w: %w", ErrRecencyUnavailable, err)
	}
	return int(llen.Val()), nil
}

// NextSequence increments the per-user counter. The counter key has no TTL.
func (r *RedisStorage) NextSequence(ctx context.Context, key string) (int64, error) {
	seq, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w: %w", ErrRecencyUnavailable, err)
	}
	return seq, nil
}

// Ping tests Redis connection
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

var _ RecencyStore = (*RedisStorage)(nil)
