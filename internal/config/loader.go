package config

import (
	"convmem/src/conversation"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning represents the structure of the memory tuning file. Keys left out
// keep their environment or default value.
type Tuning struct {
	Confidence struct {
		CountWeight     *float64 `yaml:"count_weight"`
		ScoreWeight     *float64 `yaml:"score_weight"`
		IntentWeight    *float64 `yaml:"intent_weight"`
		CountSaturation *int     `yaml:"count_saturation"`
	} `yaml:"confidence"`
	Recency struct {
		Horizon            *int  `yaml:"horizon"`
		SimilarityWeighted *bool `yaml:"similarity_weighted"`
	} `yaml:"recency"`
	RelevanceThreshold *float64 `yaml:"relevance_threshold"`
	MinConfidence      *float64 `yaml:"min_confidence"`
	TopK               *int     `yaml:"top_k"`
}

// LoadTuning loads the tuning file at path.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tuning file: %w", err)
	}

	var tuning Tuning
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}
	return &tuning, nil
}

func (t *Tuning) Validate() error {
	var errs []error
	unit := func(name string, v *float64) {
		if v != nil && (*v < 0 || *v > 1) {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, *v))
		}
	}
	nonNegative := func(name string, v *float64) {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, *v))
		}
	}
	positive := func(name string, v *int) {
		if v != nil && *v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, *v))
		}
	}

	nonNegative("confidence.count_weight", t.Confidence.CountWeight)
	nonNegative("confidence.score_weight", t.Confidence.ScoreWeight)
	nonNegative("confidence.intent_weight", t.Confidence.IntentWeight)
	positive("confidence.count_saturation", t.Confidence.CountSaturation)
	positive("recency.horizon", t.Recency.Horizon)
	positive("top_k", t.TopK)
	unit("relevance_threshold", t.RelevanceThreshold)
	unit("min_confidence", t.MinConfidence)

	return errors.Join(errs...)
}

// Apply overlays the tuning values present in the file onto s.
func (t *Tuning) Apply(s *conversation.Settings) {
	if t == nil {
		return
	}
	if v := t.Confidence.CountWeight; v != nil {
		s.Weights.Count = *v
	}
	if v := t.Confidence.ScoreWeight; v != nil {
		s.Weights.Score = *v
	}
	if v := t.Confidence.IntentWeight; v != nil {
		s.Weights.Intent = *v
	}
	if v := t.Confidence.CountSaturation; v != nil {
		s.Weights.Saturation = *v
	}
	if v := t.Recency.Horizon; v != nil {
		s.RecencyHorizon = *v
	}
	if v := t.Recency.SimilarityWeighted; v != nil {
		s.RecencySimilarity = *v
	}
	if v := t.RelevanceThreshold; v != nil {
		s.RelevanceThreshold = *v
	}
	if v := t.MinConfidence; v != nil {
		s.MinConfidence = *v
	}
	if v := t.TopK; v != nil {
		s.TopK = *v
	}
}

// BuildSettings derives the core settings from the environment configuration
// and, when path is set, the tuning file.
func BuildSettings(memory conversation.Settings, path string) (conversation.Settings, error) {
	if path == "" {
		return memory, nil
	}
	tuning, err := LoadTuning(path)
	if err != nil {
		return memory, err
	}
	tuning.Apply(&memory)
	return memory, nil
}
