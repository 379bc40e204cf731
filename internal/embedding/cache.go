package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes vectors per exact text. The same message is
// embedded on append and again when it comes back as an assembly query.
type CachedEmbedder struct {
	next  embedding.Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps next with a cache holding up to maxItems vectors.
func NewCachedEmbedder(next embedding.Embedder, maxItems int) (*CachedEmbedder, error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxItems) * 10,
		MaxCost:     int64(maxItems),
		BufferItems: 64,
		// Cost is counted in vectors, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingAt []int

	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = v.([]float64)
			continue
		}
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.next.EmbedStrings(ctx, missing, opts...)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingAt[j]] = v
		c.cache.Set(missing[j], v, 1)
	}
	return out, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)
