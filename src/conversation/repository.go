package conversation

import (
	"context"
	"convmem/internal/embedding"
	"convmem/internal/observability"
	"convmem/internal/storage"
	"convmem/pkg"
	"convmem/src/logger"
	"errors"
	"fmt"
	"sync"
	"time"

	einoembed "github.com/cloudwego/eino/components/embedding"
)

// Store names used in warnings and metrics.
const (
	StoreRecency   = "recency"
	StoreSemantic  = "semantic"
	StoreEmbedding = "embedding"
)

var ErrEmptyUserID = errors.New("user id is required")

// TurnInput is a completed exchange to persist.
type TurnInput struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Response string `json:"response"`
	Intent   string `json:"intent"`
}

// Warning reports a store write that failed without failing the append.
type Warning struct {
	Store string `json:"store"`
	Err   error  `json:"-"`
}

func (w Warning) Error() string {
	return w.Store + ": " + w.Err.Error()
}

func (w Warning) Unwrap() error { return w.Err }

type AppendResult struct {
	Turn     pkg.Turn  `json:"turn"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Repository owns the write path: every completed turn goes to the recency
// window and, when it can be embedded, to the semantic index.
type Repository struct {
	recency  storage.RecencyStore
	index    storage.SemanticIndex
	embedder einoembed.Embedder
	settings Settings
	metrics  *observability.Metrics
	now      func() time.Time

	seqMu   sync.Mutex
	lastSeq map[string]int64
}

func NewRepository(recency storage.RecencyStore, index storage.SemanticIndex, embedder einoembed.Embedder, settings Settings, metrics *observability.Metrics) *Repository {
	if index == nil {
		index = storage.NoopIndex{}
	}
	return &Repository{
		recency:  recency,
		index:    index,
		embedder: embedder,
		settings: settings,
		metrics:  metrics,
		now:      time.Now,
		lastSeq:  make(map[string]int64),
	}
}

// WithClock replaces the time source stamped on new turns.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Append stores a turn. A failed write to one store is returned as a warning;
// an error means the turn was stored nowhere.
func (r *Repository) Append(ctx context.Context, userID string, in TurnInput) (*AppendResult, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	vector, embedErr := embedding.EmbedOne(ctx, r.embedder, in.Message)

	seq, seqErr := r.recency.NextSequence(ctx, storage.SequenceKey(userID))
	if seqErr != nil {
		r.metrics.ObserveStoreError(StoreRecency, "sequence")
		if embedErr != nil {
			r.metrics.ObserveAppend("failed")
			return nil, fmt.Errorf("turn for user %s was not stored: %w", userID, errors.Join(seqErr, embedErr))
		}
		var err error
		if seq, err = r.indexedSequence(ctx, userID, vector); err != nil {
			r.metrics.ObserveAppend("failed")
			return nil, fmt.Errorf("turn for user %s was not stored: %w", userID, errors.Join(seqErr, err))
		}
	}
	seq = r.claimSequence(userID, seq)

	turn := pkg.Turn{
		UserID:    userID,
		Username:  in.Username,
		Message:   in.Message,
		Response:  in.Response,
		Intent:    in.Intent,
		CreatedAt: r.now().UTC(),
		Sequence:  seq,
	}
	result := &AppendResult{Turn: turn}

	// With no sequence from the recency store its window is unreachable too.
	recencyErr := seqErr
	if recencyErr == nil {
		recencyErr = r.recency.PushAndTrim(ctx, storage.RecencyKey(userID), turn, r.settings.MaxWindowSize, r.settings.WindowTTL)
	}
	if recencyErr != nil {
		r.warn(result, StoreRecency, recencyErr)
	}

	indexed := false
	if embedErr != nil {
		r.warn(result, StoreEmbedding, embedErr)
	} else if err := r.index.Upsert(ctx, r.settings.Collection, storage.NewRecord(r.settings.Collection, turn, vector)); err != nil {
		r.warn(result, StoreSemantic, err)
	} else {
		indexed = true
	}

	if recencyErr != nil && !indexed {
		r.metrics.ObserveAppend("failed")
		errs := make([]error, 0, len(result.Warnings))
		for _, w := range result.Warnings {
			errs = append(errs, w)
		}
		return nil, fmt.Errorf("turn %d for user %s was not stored: %w", seq, userID, errors.Join(errs...))
	}

	outcome := "stored"
	if len(result.Warnings) > 0 {
		outcome = "partial"
	}
	r.metrics.ObserveAppend(outcome)

	logger.Debug().
		Str("user_id", userID).
		Int64("sequence", seq).
		Str("intent", turn.Intent).
		Str("message", preview(turn.Message)).
		Bool("indexed", indexed).
		Msg("Turn appended")

	return result, nil
}

// indexedSequence derives the next sequence from the highest one held in the
// semantic index. Used only while the recency store cannot allocate.
func (r *Repository) indexedSequence(ctx context.Context, userID string, vector []float32) (int64, error) {
	filter := storage.Filter{UserID: userID}
	n, err := r.index.Count(ctx, r.settings.Collection, filter)
	if err != nil {
		return 0, fmt.Errorf("count indexed turns: %w", err)
	}

	var highest int64
	if n > 0 {
		hits, err := r.index.QueryTopK(ctx, r.settings.Collection, vector, n, filter)
		if err != nil {
			return 0, fmt.Errorf("scan indexed turns: %w", err)
		}
		for _, hit := range hits {
			highest = max(highest, hit.Payload.Sequence)
		}
	}

	logger.Warn().
		Str("user_id", userID).
		Int64("sequence", highest+1).
		Msg("Recency store unavailable, sequence taken from semantic index")
	return highest + 1, nil
}

// claimSequence never hands out a sequence at or below one already issued
// by this process for the user, so a recovered recency counter cannot
// overwrite turns numbered from the index.
func (r *Repository) claimSequence(userID string, seq int64) int64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	if last := r.lastSeq[userID]; seq <= last {
		seq = last + 1
	}
	r.lastSeq[userID] = seq
	return seq
}

func (r *Repository) warn(result *AppendResult, store string, err error) {
	result.Warnings = append(result.Warnings, Warning{Store: store, Err: err})
	r.metrics.ObserveStoreError(store, "append")
	logger.Warn().
		Err(err).
		Str("user_id", result.Turn.UserID).
		Int64("sequence", result.Turn.Sequence).
		Str("store", store).
		Msg("Turn write degraded")
}

// Clear deletes the user's window and semantic records. Both deletions are
// always attempted and each outcome is reported. Clearing an empty user
// succeeds with zero counts. The sequence counter is kept so numbers are
// never reused.
func (r *Repository) Clear(ctx context.Context, userID string) (pkg.ClearResult, error) {
	result := pkg.ClearResult{UserID: userID}
	if userID == "" {
		return result, ErrEmptyUserID
	}

	n, err := r.recency.DeleteKey(ctx, storage.RecencyKey(userID))
	if err != nil {
		result.RecentErr = fmt.Errorf("clear recency window: %w", err)
		r.metrics.ObserveStoreError(StoreRecency, "clear")
	} else {
		result.RecentRemoved = n
	}

	n, err = r.index.DeleteByFilter(ctx, r.settings.Collection, storage.Filter{UserID: userID})
	if err != nil {
		result.SemanticErr = fmt.Errorf("clear semantic index: %w", err)
		r.metrics.ObserveStoreError(StoreSemantic, "clear")
	} else {
		result.SemanticRemoved = n
	}

	err = errors.Join(result.RecentErr, result.SemanticErr)
	if err != nil {
		r.metrics.ObserveClear("partial")
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to clear conversation history")
		return result, err
	}

	r.metrics.ObserveClear("ok")
	logger.Info().
		Str("user_id", userID).
		Int("recent_removed", result.RecentRemoved).
		Int("semantic_removed", result.SemanticRemoved).
		Msg("Conversation history cleared")
	return result, nil
}

// History returns the user's recency window, oldest first.
func (r *Repository) History(ctx context.Context, userID string) ([]pkg.Turn, error) {
	turns, err := r.recency.GetAll(ctx, storage.RecencyKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return turns, nil
}

// IndexedCount is the number of semantic records held for the user.
func (r *Repository) IndexedCount(ctx context.Context, userID string) (int, error) {
	return r.index.Count(ctx, r.settings.Collection, storage.Filter{UserID: userID})
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}
