package conversation

import (
	"convmem/pkg"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Confidence combines how many turns were selected, how well they scored and
// whether they agree on an intent:
//
//	w.Count*min(n/S, 1) + w.Score*mean(relevance) + w.Intent*(2*share - 1)
//
// share is the fraction of labelled turns carrying the majority intent; with
// no labelled turns the intent term is 0. The result is clamped to [0,1].
func Confidence(selected []pkg.Candidate, w ConfidenceWeights) float64 {
	if len(selected) == 0 {
		return 0
	}

	saturation := w.Saturation
	if saturation <= 0 {
		saturation = 1
	}
	countTerm := min(float64(len(selected))/float64(saturation), 1)

	var sum float64
	for _, c := range selected {
		sum += c.Relevance
	}
	scoreTerm := sum / float64(len(selected))

	var intentTerm float64
	intents, labelled := intentFrequencies(selected)
	if labelled > 0 {
		share := float64(intents[0].count) / float64(labelled)
		intentTerm = 2*share - 1
	}

	c := w.Count*countTerm + w.Score*scoreTerm + w.Intent*intentTerm
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

type intentFreq struct {
	intent string
	count  int
}

// intentFrequencies lists distinct intents by count descending, then name,
// plus the number of labelled candidates.
func intentFrequencies(candidates []pkg.Candidate) ([]intentFreq, int) {
	counts := make(map[string]int)
	labelled := 0
	for _, c := range candidates {
		if c.Turn.Intent == "" {
			continue
		}
		counts[c.Turn.Intent]++
		labelled++
	}

	out := make([]intentFreq, 0, len(counts))
	for intent, n := range counts {
		out = append(out, intentFreq{intent: intent, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].intent < out[j].intent
	})
	return out, labelled
}

// Topics are the distinct intents of the selected turns, most frequent first.
func Topics(selected []pkg.Candidate) []string {
	freqs, _ := intentFrequencies(selected)
	topics := make([]string, 0, len(freqs))
	for _, f := range freqs {
		topics = append(topics, f.intent)
	}
	return topics
}

// Summary is a one-line description of the selected turns.
func Summary(selected []pkg.Candidate) string {
	if len(selected) == 0 {
		return "No relevant history"
	}

	oldest, newest := selected[0].Turn.CreatedAt, selected[0].Turn.CreatedAt
	for _, c := range selected[1:] {
		if c.Turn.CreatedAt.Before(oldest) {
			oldest = c.Turn.CreatedAt
		}
		if c.Turn.CreatedAt.After(newest) {
			newest = c.Turn.CreatedAt
		}
	}

	noun := "turns"
	if len(selected) == 1 {
		noun = "turn"
	}
	parts := []string{fmt.Sprintf("%d relevant %s", len(selected), noun)}
	if topics := Topics(selected); len(topics) > 0 {
		parts = append(parts, "mainly "+strings.ReplaceAll(topics[0], "_", " "))
	}
	if span := newest.Sub(oldest); span >= time.Minute {
		parts = append(parts, "spanning "+span.Round(time.Minute).String())
	}
	return strings.Join(parts, ", ")
}
