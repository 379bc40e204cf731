package storage

import (
	"context"
	"convmem/src/logger"
	"convmem/src/model"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ConnectTimeout bounds how long startup waits for a backend to come up.
var ConnectTimeout = 30 * time.Second

// NewRecencyStore creates a redis-backed store when configured, otherwise in-memory.
func NewRecencyStore(ctx context.Context, cfg model.RedisConfig) (RecencyStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return NewMemoryStorage(), nil
	case "redis", "":
		return connect(ctx, "redis", ErrRecencyUnavailable, func() (RecencyStore, error) {
			return NewRedisStorage(ctx, cfg.URL)
		})
	default:
		return nil, fmt.Errorf("unknown recency backend %q", cfg.Backend)
	}
}

// NewSemanticIndex creates the configured semantic index.
func NewSemanticIndex(ctx context.Context, cfg model.IndexConfig, dimensions int) (SemanticIndex, error) {
	switch strings.ToLower(cfg.Backend) {
	case "chromem", "":
		return NewChromemIndex(cfg.ChromemPath)
	case "postgres":
		return connect(ctx, "postgres", ErrIndexUnavailable, func() (SemanticIndex, error) {
			return NewPostgresIndex(ctx, cfg.DatabaseURL, dimensions)
		})
	case "sqlite":
		return NewSQLiteIndex(ctx, cfg.SQLitePath)
	case "none":
		return NoopIndex{}, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// connect retries open with exponential backoff while it fails with the
// retryable sentinel. Any other error is returned immediately.
func connect[T any](ctx context.Context, name string, retryable error, open func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = ConnectTimeout

	op := func() (T, error) {
		v, err := open()
		if err != nil && !errors.Is(err, retryable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Str("backend", name).Dur("retry_in", wait).Msg("Backend not reachable, retrying")
	}

	return backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), notify)
}
