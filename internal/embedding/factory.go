package embedding

import (
	"convmem/src/model"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

// New builds the configured provider wrapped in a vector cache.
func New(cfg model.EmbeddingConfig) (embedding.Embedder, error) {
	var base embedding.Embedder
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		o, err := NewOllamaEmbedder(cfg.OllamaHost, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		base = o
	case "hash":
		base = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(base, cfg.CacheSize)
}
