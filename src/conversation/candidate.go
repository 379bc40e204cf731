package conversation

import (
	"convmem/internal/storage"
	"convmem/pkg"
	"sort"
)

// scoreEpsilon absorbs float noise so a score equal to the threshold passes.
const scoreEpsilon = 1e-9

// RecencyWeight decays linearly from 1.0 for the newest turn (age 0) to 0 at horizon.
func RecencyWeight(age, horizon int) float64 {
	if age <= 0 {
		return 1
	}
	if horizon <= 0 {
		return 0
	}
	w := 1 - float64(age)/float64(horizon)
	if w < 0 {
		return 0
	}
	return w
}

// RecentCandidates scores a window ordered oldest first.
func RecentCandidates(window []pkg.Turn, horizon int) []pkg.Candidate {
	out := make([]pkg.Candidate, 0, len(window))
	for i, turn := range window {
		age := len(window) - 1 - i
		w := RecencyWeight(age, horizon)
		out = append(out, pkg.Candidate{
			Source:        pkg.SourceRecent,
			Turn:          turn,
			Similarity:    1.0,
			RecencyWeight: w,
			Relevance:     w,
		})
	}
	return out
}

// WeightBySimilarity rescores recent candidates as similarity times recency
// weight. sims[i] belongs to candidates[i]; negative similarity counts as 0.
func WeightBySimilarity(candidates []pkg.Candidate, sims []float64) {
	for i := range candidates {
		if i >= len(sims) || candidates[i].Source != pkg.SourceRecent {
			continue
		}
		sim := min(max(sims[i], 0), 1)
		candidates[i].Similarity = sim
		candidates[i].Relevance = sim * candidates[i].RecencyWeight
	}
}

// SemanticCandidates scores index hits by similarity. Their recency weight is
// informational, measured in sequence distance from newestSeq.
func SemanticCandidates(hits []storage.ScoredRecord, newestSeq int64, horizon int) []pkg.Candidate {
	out := make([]pkg.Candidate, 0, len(hits))
	for _, hit := range hits {
		age := int(newestSeq - hit.Payload.Sequence)
		out = append(out, pkg.Candidate{
			Source:        pkg.SourceSemantic,
			Turn:          hit.Payload,
			Similarity:    hit.Score,
			RecencyWeight: RecencyWeight(age, horizon),
			Relevance:     hit.Score,
		})
	}
	return out
}

// Merge deduplicates candidates by turn sequence, keeping the higher
// relevance. On a tie the earlier candidate wins.
func Merge(groups ...[]pkg.Candidate) []pkg.Candidate {
	index := make(map[int64]int)
	var out []pkg.Candidate
	for _, group := range groups {
		for _, c := range group {
			if i, seen := index[c.Turn.Sequence]; seen {
				if c.Relevance > out[i].Relevance {
					out[i] = c
				}
				continue
			}
			index[c.Turn.Sequence] = len(out)
			out = append(out, c)
		}
	}
	return out
}

// FilterByThreshold keeps candidates whose relevance is at least threshold.
func FilterByThreshold(candidates []pkg.Candidate, threshold float64) []pkg.Candidate {
	out := make([]pkg.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Relevance+scoreEpsilon >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// SortCandidates orders by relevance descending, newest first on ties.
func SortCandidates(candidates []pkg.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Relevance != candidates[j].Relevance {
			return candidates[i].Relevance > candidates[j].Relevance
		}
		return candidates[i].Turn.Sequence > candidates[j].Turn.Sequence
	})
}

// SelectWithinBudget takes the longest prefix of sorted candidates whose
// total turn length fits budget. Turns are never split.
func SelectWithinBudget(sorted []pkg.Candidate, budget int) ([]pkg.Candidate, int) {
	used := 0
	for i, c := range sorted {
		n := c.Turn.Length()
		if used+n > budget {
			return sorted[:i], used
		}
		used += n
	}
	return sorted, used
}

// chronological reorders selected candidates oldest first for display.
func chronological(candidates []pkg.Candidate) []pkg.Candidate {
	out := append([]pkg.Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Turn.Sequence < out[j].Turn.Sequence })
	return out
}

func newestSequence(window []pkg.Turn, hits []storage.ScoredRecord) int64 {
	var newest int64
	for _, t := range window {
		newest = max(newest, t.Sequence)
	}
	for _, h := range hits {
		newest = max(newest, h.Payload.Sequence)
	}
	return newest
}
