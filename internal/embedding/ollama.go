package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/ollama/ollama/api"
)

// OllamaEmbedder calls a local or remote Ollama server's /api/embed.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder connects to host, or to OLLAMA_HOST when host is empty.
func NewOllamaEmbedder(host, model string, dimensions int) (*OllamaEmbedder, error) {
	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("failed to parse OLLAMA_HOST: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}

	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

func (o *OllamaEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	model := o.model
	if common := embedding.GetCommonOptions(&embedding.Options{Model: &model}, opts...); common.Model != nil {
		model = *common.Model
	}

	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embed: %w", ErrUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d inputs", ErrUnavailable, len(resp.Embeddings), len(texts))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		if o.dimensions > 0 && len(v) != o.dimensions {
			return nil, fmt.Errorf("%w: model %s returned %d dimensions, want %d", ErrUnavailable, model, len(v), o.dimensions)
		}
		out[i] = toFloat64(v)
	}
	return out, nil
}

var _ embedding.Embedder = (*OllamaEmbedder)(nil)
