package storage

import (
	"context"
	"convmem/pkg"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// DefaultCollection is the semantic index namespace for conversation turns.
const DefaultCollection = "conversation_history"

var (
	ErrIndexUnavailable = errors.New("semantic index unavailable")
	ErrMissingUserID    = errors.New("user id filter is required")
)

// recordNamespace seeds deterministic record ids.
var recordNamespace = uuid.MustParse("6f1c2a0e-4b7d-5e8a-9c3f-2d1e0b7a6c54")

// Filter narrows index operations. UserID is mandatory; every collection is
// partitioned per user.
type Filter struct {
	UserID string
	Intent string
}

func (f Filter) validate() error {
	if f.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// SemanticRecord is one indexed turn.
type SemanticRecord struct {
	ID      string
	Vector  []float32
	Payload pkg.Turn
}

// ScoredRecord is a query hit with its cosine similarity in [0,1].
type ScoredRecord struct {
	Payload pkg.Turn
	Score   float64
}

// SemanticIndex is the long-term memory of all users.
type SemanticIndex interface {
	Upsert(ctx context.Context, collection string, record SemanticRecord) error
	QueryTopK(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]ScoredRecord, error)
	// DeleteByFilter removes matching records and returns how many were removed.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error)
	// Count reports how many records the filter's user has. Intent is ignored.
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Close() error
}

// RecordID derives a stable id for a turn so repeated upserts overwrite.
func RecordID(collection, userID string, sequence int64) string {
	name := collection + "/" + userID + "/" + strconv.FormatInt(sequence, 10)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// NewRecord builds the record for a stored turn.
func NewRecord(collection string, turn pkg.Turn, vector []float32) SemanticRecord {
	return SemanticRecord{
		ID:      RecordID(collection, turn.UserID, turn.Sequence),
		Vector:  vector,
		Payload: turn,
	}
}

// NoopIndex is used when no semantic backend is configured. Reads and writes
// fail with ErrIndexUnavailable so callers take their recency-only path.
type NoopIndex struct{}

func (NoopIndex) Upsert(context.Context, string, SemanticRecord) error {
	return ErrIndexUnavailable
}

func (NoopIndex) QueryTopK(context.Context, string, []float32, int, Filter) ([]ScoredRecord, error) {
	return nil, ErrIndexUnavailable
}

// DeleteByFilter succeeds with nothing removed; there is nothing to clear.
func (NoopIndex) DeleteByFilter(context.Context, string, Filter) (int, error) {
	return 0, nil
}

func (NoopIndex) Count(context.Context, string, Filter) (int, error) {
	return 0, nil
}

func (NoopIndex) Close() error { return nil }

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 if either vector is empty or has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clampScore maps a raw cosine into [0,1]; opposite vectors count as unrelated.
func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// sortScored orders hits by descending score, newer turns first on ties.
func sortScored(hits []ScoredRecord) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Payload.Sequence > hits[j].Payload.Sequence
	})
}

func indexErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrIndexUnavailable, err)
}
