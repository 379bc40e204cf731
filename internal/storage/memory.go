package storage

import (
	"context"
	"convmem/pkg"
	"sync"
	"time"
)

// MemoryStorage is an in-memory RecencyStore for development and tests
type MemoryStorage struct {
	mu        sync.Mutex
	windows   map[string]*memoryWindow
	sequences map[string]int64
	now       func() time.Time
}

type memoryWindow struct {
	turns     []pkg.Turn
	expiresAt time.Time
}

// NewMemoryStorage creates a new in-memory recency store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		windows:   make(map[string]*memoryWindow),
		sequences: make(map[string]int64),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (m *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
	m.now = now
	return m
}

// window returns the live window for key, dropping it when expired. Caller holds mu.
func (m *MemoryStorage) window(key string) *memoryWindow {
	w, ok := m.windows[key]
	if !ok {
		return nil
	}
	if !m.now().Before(w.expiresAt) {
		delete(m.windows, key)
		return nil
	}
	return w
}

func (m *MemoryStorage) PushAndTrim(ctx context.Context, key string, turn pkg.Turn, maxLen int, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxWindowSize
	}
	if ttl <= 0 {
		ttl = DefaultWindowTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.window(key)
	if w == nil {
		w = &memoryWindow{}
		m.windows[key] = w
	}
	w.turns = append(w.turns, turn)
	if len(w.turns) > maxLen {
		w.turns = append([]pkg.Turn(nil), w.turns[len(w.turns)-maxLen:]...)
	}
	w.expiresAt = m.now().Add(ttl)
	return nil
}

func (m *MemoryStorage) GetAll(ctx context.Context, key string) ([]pkg.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.window(key)
	if w == nil {
		return []pkg.Turn{}, nil
	}
	return append([]pkg.Turn(nil), w.turns...), nil
}

func (m *MemoryStorage) DeleteKey(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.window(key)
	if w == nil {
		return 0, nil
	}
	delete(m.windows, key)
	return len(w.turns), nil
}

func (m *MemoryStorage) NextSequence(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[key]++
	return m.sequences[key], nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStorage) Close() error {
	return nil
}

var _ RecencyStore = (*MemoryStorage)(nil)
