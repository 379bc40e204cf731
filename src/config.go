package src

import (
	"convmem/src/model"
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogConfig       model.LogConfig       `envconfig:""`
	RedisConfig     model.RedisConfig     `envconfig:""`
	IndexConfig     model.IndexConfig     `envconfig:""`
	EmbeddingConfig model.EmbeddingConfig `envconfig:""`
	MemoryConfig    model.MemoryConfig    `envconfig:""`
	HTTPConfig      model.HTTPConfig      `envconfig:""`
}

func LoadConfig() (*Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports every missing connection parameter and out-of-range knob at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.RedisConfig.Backend {
	case "redis":
		if c.RedisConfig.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when RECENCY_BACKEND=redis"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown RECENCY_BACKEND %q", c.RedisConfig.Backend))
	}

	switch c.IndexConfig.Backend {
	case "postgres":
		if c.IndexConfig.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when INDEX_BACKEND=postgres"))
		}
	case "sqlite":
		if c.IndexConfig.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when INDEX_BACKEND=sqlite"))
		}
	case "chromem", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexConfig.Backend))
	}

	switch c.EmbeddingConfig.Provider {
	case "ollama", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingConfig.Provider))
	}
	if c.EmbeddingConfig.Dimensions <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIMENSIONS must be positive"))
	}

	m := c.MemoryConfig
	if m.MaxWindowSize <= 0 {
		errs = append(errs, errors.New("MAX_WINDOW_SIZE must be positive"))
	}
	if m.MaxBudget <= 0 {
		errs = append(errs, errors.New("MAX_BUDGET must be positive"))
	}
	if m.TopK <= 0 {
		errs = append(errs, errors.New("SEMANTIC_TOP_K must be positive"))
	}
	if m.RelevanceThreshold < 0 || m.RelevanceThreshold > 1 {
		errs = append(errs, errors.New("RELEVANCE_THRESHOLD must be within [0,1]"))
	}
	if m.MinConfidence < 0 || m.MinConfidence > 1 {
		errs = append(errs, errors.New("MIN_CONFIDENCE must be within [0,1]"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
