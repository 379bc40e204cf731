// Package embedding adapts text embedding providers to eino's
// embedding.Embedder contract and converts their output to the float32
// vectors stored by the semantic index.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// ErrUnavailable marks any failure to obtain a vector.
var ErrUnavailable = errors.New("embedding provider unavailable")

// EmbedOne embeds a single text and returns it as float32.
func EmbedOne(ctx context.Context, e embedding.Embedder, text string) ([]float32, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrUnavailable)
	}

	vectors, err := e.EmbedStrings(ctx, []string{text})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: provider returned %d vectors", ErrUnavailable, len(vectors))
	}
	return ToFloat32(vectors[0]), nil
}

func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
