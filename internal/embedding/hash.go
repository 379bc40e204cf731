package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// HashEmbedder is an offline provider that feature-hashes lowercase word
// tokens into a fixed number of signed buckets. Texts sharing words score a
// positive cosine and identical texts score 1.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		// Non-word input still gets a stable direction.
		tokens = []string{text}
	}

	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dimensions))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var _ embedding.Embedder = (*HashEmbedder)(nil)
