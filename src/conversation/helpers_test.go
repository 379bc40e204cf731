package conversation

import (
	"context"
	"convmem/internal/embedding"
	"convmem/internal/storage"
	"convmem/pkg"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

// failingEmbedder always reports the provider as unreachable.
type failingEmbedder struct{}

func (failingEmbedder) EmbedStrings(context.Context, []string, ...einoembed.Option) ([][]float64, error) {
	return nil, errDown
}

// tableEmbedder maps known texts to fixed vectors and everything else to fallback.
type tableEmbedder struct {
	vectors  map[string][]float64
	fallback []float64
}

func (e tableEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoembed.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := e.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = e.fallback
	}
	return out, nil
}

// failingRecency fails every call.
type failingRecency struct{}

func (failingRecency) PushAndTrim(context.Context, string, pkg.Turn, int, time.Duration) error {
	return errDown
}
func (failingRecency) GetAll(context.Context, string) ([]pkg.Turn, error) { return nil, errDown }
func (failingRecency) DeleteKey(context.Context, string) (int, error)     { return 0, errDown }
func (failingRecency) NextSequence(context.Context, string) (int64, error) {
	return 0, errDown
}
func (failingRecency) Ping(context.Context) error { return errDown }
func (failingRecency) Close() error               { return nil }

// brokenWrites hands out sequences but loses every window write.
type brokenWrites struct {
	*storage.MemoryStorage
}

func (brokenWrites) PushAndTrim(context.Context, string, pkg.Turn, int, time.Duration) error {
	return errDown
}

// flakyRecency is an in-memory store that can be switched off.
type flakyRecency struct {
	*storage.MemoryStorage
	down *atomic.Bool
}

func newFlakyRecency() flakyRecency {
	return flakyRecency{MemoryStorage: storage.NewMemoryStorage(), down: new(atomic.Bool)}
}

func (f flakyRecency) PushAndTrim(ctx context.Context, key string, turn pkg.Turn, maxLen int, ttl time.Duration) error {
	if f.down.Load() {
		return errDown
	}
	return f.MemoryStorage.PushAndTrim(ctx, key, turn, maxLen, ttl)
}

func (f flakyRecency) NextSequence(ctx context.Context, key string) (int64, error) {
	if f.down.Load() {
		return 0, errDown
	}
	return f.MemoryStorage.NextSequence(ctx, key)
}

// blockingRecency never answers reads until released.
type blockingRecency struct {
	*storage.MemoryStorage
	release chan struct{}
}

func (b blockingRecency) GetAll(context.Context, string) ([]pkg.Turn, error) {
	<-b.release
	return nil, nil
}

// failingIndex is a semantic index that is down.
type failingIndex struct{}

func (failingIndex) Upsert(context.Context, string, storage.SemanticRecord) error {
	return errDown
}
func (failingIndex) QueryTopK(context.Context, string, []float32, int, storage.Filter) ([]storage.ScoredRecord, error) {
	return nil, errDown
}
func (failingIndex) DeleteByFilter(context.Context, string, storage.Filter) (int, error) {
	return 0, errDown
}
func (failingIndex) Count(context.Context, string, storage.Filter) (int, error) { return 0, errDown }
func (failingIndex) Close() error                                              { return nil }

// fixedIndex returns canned hits regardless of the query vector.
type fixedIndex struct {
	storage.NoopIndex
	hits []storage.ScoredRecord
}

func (f fixedIndex) QueryTopK(context.Context, string, []float32, int, storage.Filter) ([]storage.ScoredRecord, error) {
	return f.hits, nil
}

func turn(seq int64, msg, resp, intent string) pkg.Turn {
	return pkg.Turn{
		UserID:    "u1",
		Username:  "alice",
		Message:   msg,
		Response:  resp,
		Intent:    intent,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		Sequence:  seq,
	}
}

type fixture struct {
	recency   storage.RecencyStore
	index     storage.SemanticIndex
	embedder  einoembed.Embedder
	settings  Settings
	repo      *Repository
	assembler *Assembler
	service   *Service
}

// newFixture wires the core over in-memory stores, a chromem index and the
// hash embedder. Override fields through the opts before the wiring runs.
func newFixture(t *testing.T, opts ...func(*fixture)) *fixture {
	t.Helper()

	idx, err := storage.NewChromemIndex("")
	require.NoError(t, err)

	f := &fixture{
		recency:  storage.NewMemoryStorage(),
		index:    idx,
		embedder: embedding.NewHashEmbedder(64),
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.repo = NewRepository(f.recency, f.index, f.embedder, f.settings, nil)
	f.assembler = NewAssembler(f.recency, f.index, f.embedder, f.settings, nil)
	f.service = NewService(f.repo, f.assembler, f.settings)
	return f
}

func (f *fixture) append(t *testing.T, userID, msg, resp, intent string) *AppendResult {
	t.Helper()
	res, err := f.repo.Append(context.Background(), userID, TurnInput{
		Username: "alice",
		Message:  msg,
		Response: resp,
		Intent:   intent,
	})
	require.NoError(t, err)
	return res
}
