package storage

import (
	"context"
	"convmem/pkg"
	"convmem/src/logger"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex wraps chromem-go for vector storage.
// Each user gets their own collection for namespace isolation, so clearing a
// user drops one collection.
type ChromemIndex struct {
	db *chromem.DB
	mu sync.Mutex
}

// NewChromemIndex creates an in-memory index, or a persistent one when path is set.
func NewChromemIndex(path string) (*ChromemIndex, error) {
	if path == "" {
		return &ChromemIndex{db: chromem.NewDB()}, nil
	}

	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db at %s: %w", path, err)
	}
	return &ChromemIndex{db: db}, nil
}

func collectionName(collection, userID string) string {
	return collection + "_user_" + userID
}

// precomputed refuses to embed; every document and query carries its own vector.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be computed before indexing")
}

func (c *ChromemIndex) collection(name string, create bool) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !create {
		return c.db.GetCollection(name, precomputed), nil
	}
	col, err := c.db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return col, nil
}

// Upsert stores the turn's vector with its payload serialized as document content.
func (c *ChromemIndex) Upsert(ctx context.Context, collection string, record SemanticRecord) error {
	if record.Payload.UserID == "" {
		return ErrMissingUserID
	}
	if len(record.Vector) == 0 {
		return errors.New("record vector is empty")
	}

	col, err := c.collection(collectionName(collection, record.Payload.UserID), true)
	if err != nil {
		return indexErr("open collection", err)
	}

	content, err := sonic.MarshalString(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	doc := chromem.Document{
		ID:        record.ID,
		Content:   content,
		Embedding: record.Vector,
		Metadata: map[string]string{
			"user_id":   record.Payload.UserID,
			"intent":    record.Payload.Intent,
			"sequence":  strconv.FormatInt(record.Payload.Sequence, 10),
			"timestamp": record.Payload.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return indexErr("add document", err)
	}
	return nil
}

// QueryTopK returns up to k nearest turns for the filter's user.
func (c *ChromemIndex) QueryTopK(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]ScoredRecord, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	col, _ := c.collection(collectionName(collection, filter.UserID), false)
	if col == nil {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	var where map[string]string
	if filter.Intent != "" {
		where = map[string]string{"intent": filter.Intent}
	}

	results, err := col.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, indexErr("query collection", err)
	}

	hits := make([]ScoredRecord, 0, len(results))
	for i, result := range results {
		var turn pkg.Turn
		if err := sonic.UnmarshalString(result.Content, &turn); err != nil {
			logger.Warn().Err(err).Int("rank", i+1).Str("user_id", filter.UserID).Msg("Skipping undecodable chromem result")
			continue
		}
		hits = append(hits, ScoredRecord{Payload: turn, Score: clampScore(float64(result.Similarity))})
	}
	sortScored(hits)
	return hits, nil
}

// DeleteByFilter drops the user's collection. With an intent filter only
// matching documents are removed.
func (c *ChromemIndex) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	name := collectionName(collection, filter.UserID)
	col, _ := c.collection(name, false)
	if col == nil {
		return 0, nil
	}

	if filter.Intent != "" {
		before := col.Count()
		if err := col.Delete(ctx, map[string]string{"intent": filter.Intent}, nil); err != nil {
			return 0, indexErr("delete documents", err)
		}
		return before - col.Count(), nil
	}

	removed := col.Count()
	c.mu.Lock()
	err := c.db.DeleteCollection(name)
	c.mu.Unlock()
	if err != nil {
		return 0, indexErr("delete collection", err)
	}
	return removed, nil
}

func (c *ChromemIndex) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}
	col, _ := c.collection(collectionName(collection, filter.UserID), false)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Close releases resources.
func (c *ChromemIndex) Close() error {
	return nil
}

var _ SemanticIndex = (*ChromemIndex)(nil)
