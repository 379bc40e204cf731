package conversation

import (
	"convmem/internal/storage"
	"convmem/pkg"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecencyWeight(t *testing.T) {
	assert.Equal(t, 1.0, RecencyWeight(0, 50))
	assert.InDelta(t, 0.98, RecencyWeight(1, 50), 1e-9)
	assert.InDelta(t, 0.5, RecencyWeight(25, 50), 1e-9)
	assert.Equal(t, 0.0, RecencyWeight(50, 50))
	assert.Equal(t, 0.0, RecencyWeight(80, 50))
	assert.Equal(t, 0.0, RecencyWeight(3, 0))
}

func TestRecentCandidates_NewestWeighsMost(t *testing.T) {
	window := []pkg.Turn{turn(1, "a", "", ""), turn(2, "b", "", ""), turn(3, "c", "", "")}

	got := RecentCandidates(window, 10)
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got[2].Relevance)
	assert.InDelta(t, 0.9, got[1].Relevance, 1e-9)
	assert.InDelta(t, 0.8, got[0].Relevance, 1e-9)
	for _, c := range got {
		assert.Equal(t, pkg.SourceRecent, c.Source)
		assert.Equal(t, 1.0, c.Similarity)
	}
}

func TestWeightBySimilarity(t *testing.T) {
	window := []pkg.Turn{turn(1, "a", "", ""), turn(2, "b", "", ""), turn(3, "c", "", "")}
	got := RecentCandidates(window, 10)

	WeightBySimilarity(got, []float64{0.5, -0.4, 1.2})
	assert.InDelta(t, 0.4, got[0].Relevance, 1e-9)
	assert.InDelta(t, 0.5, got[0].Similarity, 1e-9)
	assert.Zero(t, got[1].Relevance)
	assert.Zero(t, got[1].Similarity)
	assert.Equal(t, 1.0, got[2].Relevance)
	assert.InDelta(t, 0.9, got[1].RecencyWeight, 1e-9)
}

func TestSemanticCandidates(t *testing.T) {
	hits := []storage.ScoredRecord{{Payload: turn(4, "x", "", ""), Score: 0.7}}

	got := SemanticCandidates(hits, 9, 10)
	require.Len(t, got, 1)
	assert.Equal(t, pkg.SourceSemantic, got[0].Source)
	assert.Equal(t, 0.7, got[0].Relevance)
	assert.InDelta(t, 0.5, got[0].RecencyWeight, 1e-9)
}

func TestMerge_KeepsHigherScore(t *testing.T) {
	recent := []pkg.Candidate{
		{Source: pkg.SourceRecent, Turn: turn(1, "a", "", ""), Relevance: 0.4},
		{Source: pkg.SourceRecent, Turn: turn(2, "b", "", ""), Relevance: 1.0},
	}
	semantic := []pkg.Candidate{
		{Source: pkg.SourceSemantic, Turn: turn(1, "a", "", ""), Relevance: 0.9},
		{Source: pkg.SourceSemantic, Turn: turn(2, "b", "", ""), Relevance: 0.5},
		{Source: pkg.SourceSemantic, Turn: turn(7, "g", "", ""), Relevance: 0.6},
	}

	got := Merge(recent, semantic)
	require.Len(t, got, 3)
	assert.Equal(t, pkg.SourceSemantic, got[0].Source)
	assert.Equal(t, 0.9, got[0].Relevance)
	assert.Equal(t, pkg.SourceRecent, got[1].Source)
	assert.Equal(t, int64(7), got[2].Turn.Sequence)
}

func TestMerge_TieKeepsFirst(t *testing.T) {
	got := Merge(
		[]pkg.Candidate{{Source: pkg.SourceRecent, Turn: turn(1, "a", "", ""), Relevance: 0.5}},
		[]pkg.Candidate{{Source: pkg.SourceSemantic, Turn: turn(1, "a", "", ""), Relevance: 0.5}},
	)
	require.Len(t, got, 1)
	assert.Equal(t, pkg.SourceRecent, got[0].Source)
}

func TestFilterByThreshold_Boundary(t *testing.T) {
	candidates := []pkg.Candidate{
		{Turn: turn(1, "a", "", ""), Relevance: 0.29},
		{Turn: turn(2, "b", "", ""), Relevance: 0.30},
		{Turn: turn(3, "c", "", ""), Relevance: 0.1 + 0.2}, // 0.30000000000000004
		{Turn: turn(4, "d", "", ""), Relevance: 0.3 - 1e-12},
	}

	got := FilterByThreshold(candidates, 0.3)
	seqs := make([]int64, 0, len(got))
	for _, c := range got {
		seqs = append(seqs, c.Turn.Sequence)
	}
	assert.Equal(t, []int64{2, 3, 4}, seqs)
}

func TestSortCandidates(t *testing.T) {
	candidates := []pkg.Candidate{
		{Turn: turn(1, "a", "", ""), Relevance: 0.5},
		{Turn: turn(2, "b", "", ""), Relevance: 0.9},
		{Turn: turn(3, "c", "", ""), Relevance: 0.5},
	}
	SortCandidates(candidates)
	assert.Equal(t, int64(2), candidates[0].Turn.Sequence)
	assert.Equal(t, int64(3), candidates[1].Turn.Sequence)
	assert.Equal(t, int64(1), candidates[2].Turn.Sequence)
}

func TestSelectWithinBudget_Prefix(t *testing.T) {
	sorted := []pkg.Candidate{
		{Turn: turn(1, strings.Repeat("a", 40), "", "")},
		{Turn: turn(2, strings.Repeat("b", 30), strings.Repeat("b", 20), "")},
		{Turn: turn(3, strings.Repeat("c", 5), "", "")},
	}

	got, used := SelectWithinBudget(sorted, 60)
	require.Len(t, got, 1)
	assert.Equal(t, 40, used)

	got, used = SelectWithinBudget(sorted, 95)
	require.Len(t, got, 3)
	assert.Equal(t, 95, used)

	got, used = SelectWithinBudget(sorted, 10)
	assert.Empty(t, got)
	assert.Zero(t, used)
}

func TestSelectWithinBudget_CountsRunes(t *testing.T) {
	sorted := []pkg.Candidate{{Turn: turn(1, "héllo", "wörld", "")}}
	got, used := SelectWithinBudget(sorted, 10)
	require.Len(t, got, 1)
	assert.Equal(t, 10, used)
}

func TestChronological(t *testing.T) {
	got := chronological([]pkg.Candidate{{Turn: turn(5, "", "", "")}, {Turn: turn(2, "", "", "")}, {Turn: turn(9, "", "", "")}})
	assert.Equal(t, int64(2), got[0].Turn.Sequence)
	assert.Equal(t, int64(5), got[1].Turn.Sequence)
	assert.Equal(t, int64(9), got[2].Turn.Sequence)
}
