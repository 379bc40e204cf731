package main

import (
	"context"
	"convmem/internal/config"
	"convmem/internal/embedding"
	"convmem/internal/observability"
	"convmem/internal/storage"
	"convmem/src"
	"convmem/src/conversation"
	"convmem/src/logger"
	"errors"
	"fmt"
	"os"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const metricsNamespace = "convmem"

var rootCmd = &cobra.Command{
	Use:   "convmem",
	Short: "Conversational memory core",
	Long: `convmem keeps a short recency window and a semantic index of each user's
conversation turns and assembles bounded, scored context for a response generator.`,
	SilenceUsage: true,
}

func main() {
	// Load environment variables from .env file when present
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the process-scoped store handles shared by every request.
type app struct {
	cfg      *src.Config
	recency  storage.RecencyStore
	index    storage.SemanticIndex
	embedder einoembed.Embedder
	metrics  *observability.Metrics
	service  *conversation.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := src.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.LogConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	settings, err := config.BuildSettings(
		conversation.SettingsFromConfig(cfg.MemoryConfig, cfg.IndexConfig.Collection),
		cfg.MemoryConfig.TuningFile,
	)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: observability.NewMetrics(metricsNamespace)}

	a.recency, err = storage.NewRecencyStore(ctx, cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	a.index, err = storage.NewSemanticIndex(ctx, cfg.IndexConfig, cfg.EmbeddingConfig.Dimensions)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder, err = embedding.New(cfg.EmbeddingConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = conversation.NewService(
		conversation.NewRepository(a.recency, a.index, a.embedder, settings, a.metrics),
		conversation.NewAssembler(a.recency, a.index, a.embedder, settings, a.metrics),
		settings,
	)

	logger.Info().
		Str("recency_backend", cfg.RedisConfig.Backend).
		Str("index_backend", cfg.IndexConfig.Backend).
		Str("embedding_provider", cfg.EmbeddingConfig.Provider).
		Int("max_window_size", settings.MaxWindowSize).
		Float64("relevance_threshold", settings.RelevanceThreshold).
		Float64("min_confidence", settings.MinConfidence).
		Msg("Memory core initialized")

	return a, nil
}

func (a *app) Close() {
	if c, ok := a.embedder.(interface{ Close() }); ok {
		c.Close()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close semantic index")
		}
	}
	if a.recency != nil {
		if err := a.recency.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close recency store")
		}
	}
}
