package storage

import (
	"context"
	"convmem/pkg"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Constants for the recency window
const (
	// DefaultWindowTTL discards an idle window after 7 days
	DefaultWindowTTL = 7 * 24 * time.Hour
	// DefaultMaxWindowSize is the number of turns kept per user
	DefaultMaxWindowSize = 50

	historyPrefix  = "conversation_history:user:"
	sequencePrefix = "conversation_seq:user:"
)

var ErrRecencyUnavailable = errors.New("recency store unavailable")

// RecencyStore is the short-term memory of a user: a bounded, TTL'd list of
// turns kept oldest first.
type RecencyStore interface {
	// PushAndTrim appends turn, keeps only the newest maxLen entries and
	// refreshes the key's TTL.
	PushAndTrim(ctx context.Context, key string, turn pkg.Turn, maxLen int, ttl time.Duration) error
	GetAll(ctx context.Context, key string) ([]pkg.Turn, error)
	// DeleteKey removes the window and returns how many turns it held.
	DeleteKey(ctx context.Context, key string) (int, error)
	// NextSequence increments and returns a counter that is never reset by DeleteKey.
	NextSequence(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// RecencyKey is the window key of a user.
func RecencyKey(userID string) string {
	return historyPrefix + userID
}

// SequenceKey is the sequence counter key of a user.
func SequenceKey(userID string) string {
	return sequencePrefix + userID
}

func encodeTurn(turn pkg.Turn) ([]byte, error) {
	data, err := sonic.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn: %w", err)
	}
	return data, nil
}

func decodeTurn(data []byte) (pkg.Turn, error) {
	var turn pkg.Turn
	if err := sonic.Unmarshal(data, &turn); err != nil {
		return pkg.Turn{}, fmt.Errorf("failed to unmarshal turn: %w", err)
	}
	return turn, nil
}
