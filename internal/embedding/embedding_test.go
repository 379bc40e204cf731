package embedding

import (
	"context"
	"convmem/src/model"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	texts []string
	err   error
}

func (c *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder_SelfSimilarity(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(384)

	a, err := EmbedOne(ctx, h, "What are functions?")
	require.NoError(t, err)
	b, err := EmbedOne(ctx, h, "What are functions?")
	require.NoError(t, err)
	c, err := EmbedOne(ctx, h, "Tell me about the weather in Paris")
	require.NoError(t, err)

	assert.Len(t, a, 384)
	assert.InDelta(t, 1.0, cosine(a, b), 1e-6)
	assert.Less(t, cosine(a, c), 0.5)
}

func TestHashEmbedder_SharedWordsCorrelate(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(384)

	a, _ := EmbedOne(ctx, h, "python functions tutorial")
	b, _ := EmbedOne(ctx, h, "functions in python")
	assert.Greater(t, cosine(a, b), 0.5)
}

func TestEmbedOne_WrapsFailures(t *testing.T) {
	_, err := EmbedOne(context.Background(), &countingEmbedder{err: errors.New("boom")}, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = EmbedOne(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCachedEmbedder_HitsSkipProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 100)
	require.NoError(t, err)
	defer cached.Close()

	first, err := cached.EmbedStrings(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	cached.Wait()

	second, err := cached.EmbedStrings(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, inner.texts)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_PropagatesErrors(t *testing.T) {
	cached, err := NewCachedEmbedder(&countingEmbedder{err: ErrUnavailable}, 10)
	require.NoError(t, err)
	defer cached.Close()

	_, err = cached.EmbedStrings(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{0.6, 0.8, 0}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings})
	}))
	defer srv.Close()

	o, err := NewOllamaEmbedder(srv.URL, "all-minilm", 3)
	require.NoError(t, err)

	vec, err := EmbedOne(context.Background(), o, "hello")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, vec, 1e-6)
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","embeddings":[[1,0]]}`))
	}))
	defer srv.Close()

	o, err := NewOllamaEmbedder(srv.URL, "m", 384)
	require.NoError(t, err)

	_, err = EmbedOne(context.Background(), o, "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaEmbedder_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	o, err := NewOllamaEmbedder(srv.URL, "missing", 384)
	require.NoError(t, err)

	_, err = o.EmbedStrings(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNew(t *testing.T) {
	e, err := New(model.EmbeddingConfig{Provider: "hash", Dimensions: 16, CacheSize: 10})
	require.NoError(t, err)
	vec, err := EmbedOne(context.Background(), e, "hi")
	require.NoError(t, err)
	assert.Len(t, vec, 16)

	_, err = New(model.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err)
}
