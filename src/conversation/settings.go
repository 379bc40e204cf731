package conversation

import (
	"convmem/internal/storage"
	"convmem/src/model"
	"time"
)

// ConfidenceWeights shape the confidence score of an assembled context.
type ConfidenceWeights struct {
	Count      float64 `yaml:"count_weight"`
	Score      float64 `yaml:"score_weight"`
	Intent     float64 `yaml:"intent_weight"`
	Saturation int     `yaml:"count_saturation"` // selected turns at which the count term maxes out
}

// Settings configures the repository, assembler and service.
type Settings struct {
	Collection         string
	MaxWindowSize      int
	WindowTTL          time.Duration
	TopK               int
	RelevanceThreshold float64
	MinConfidence      float64
	MaxBudget          int
	AssembleTimeout    time.Duration
	// RecencyHorizon is the age in turns at which recency weight reaches 0.
	// Zero means MaxWindowSize.
	RecencyHorizon int
	// RecencySimilarity scales recent candidates by their similarity to the
	// current message. Off, recency alone decides their relevance.
	RecencySimilarity bool
	Weights        ConfidenceWeights
	ClearIntent    string
}

func DefaultSettings() Settings {
	return Settings{
		Collection:         storage.DefaultCollection,
		MaxWindowSize:      storage.DefaultMaxWindowSize,
		WindowTTL:          storage.DefaultWindowTTL,
		TopK:               10,
		RelevanceThreshold: 0.3,
		MinConfidence:      0.3,
		MaxBudget:          4000,
		AssembleTimeout:    3 * time.Second,
		Weights: ConfidenceWeights{
			Count:      0.2,
			Score:      0.6,
			Intent:     0.2,
			Saturation: 5,
		},
		ClearIntent: "CLEAR_CONVERSATION",
	}
}

// SettingsFromConfig overlays environment configuration on the defaults.
func SettingsFromConfig(m model.MemoryConfig, collection string) Settings {
	s := DefaultSettings()
	if collection != "" {
		s.Collection = collection
	}
	if m.MaxWindowSize > 0 {
		s.MaxWindowSize = m.MaxWindowSize
	}
	if m.WindowTTL > 0 {
		s.WindowTTL = m.WindowTTL
	}
	if m.TopK > 0 {
		s.TopK = m.TopK
	}
	s.RelevanceThreshold = m.RelevanceThreshold
	s.MinConfidence = m.MinConfidence
	if m.MaxBudget > 0 {
		s.MaxBudget = m.MaxBudget
	}
	if m.AssembleTimeout > 0 {
		s.AssembleTimeout = m.AssembleTimeout
	}
	if m.ClearIntent != "" {
		s.ClearIntent = m.ClearIntent
	}
	return s
}

func (s Settings) horizon() int {
	if s.RecencyHorizon > 0 {
		return s.RecencyHorizon
	}
	if s.MaxWindowSize > 0 {
		return s.MaxWindowSize
	}
	return storage.DefaultMaxWindowSize
}
