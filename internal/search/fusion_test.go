package search

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranked(ids ...string) []models.RankedItem {
	items := make([]models.RankedItem, len(ids))
	for i, id := range ids {
		items[i] = models.RankedItem{EmailID: id, Rank: i + 1}
	}
	return items
}

func find(results []models.MergedResult, id string) (models.MergedResult, bool) {
	for _, r := range results {
		if r.EmailID == id {
			return r, true
		}
	}
	return models.MergedResult{}, false
}

func TestMerge_BothSourcesSum(t *testing.T) {
	kw := ranked("email-A", "email-B")
	sem := ranked("email-B", "email-C")

	results := Merge(kw, sem)
	require.Len(t, results, 3)

	b, ok := find(results, "email-B")
	require.True(t, ok)
	assert.InDelta(t, 1.0/62+1.5/61, b.Score, 1e-12)
	assert.InDelta(t, 0.0407192, b.Score, 1e-6)
	assert.Equal(t, models.MatchBoth, b.MatchSource)
	assert.Equal(t, "email-B", results[0].EmailID)

	a, _ := find(results, "email-A")
	assert.Equal(t, models.MatchKeyword, a.MatchSource)
	assert.InDelta(t, 1.0/61, a.Score, 1e-12)

	c, _ := find(results, "email-C")
	assert.Equal(t, models.MatchSemantic, c.MatchSource)
	assert.InDelta(t, 1.5/62, c.Score, 1e-12)
}

func TestMerge_SingleSourceScores(t *testing.T) {
	params := []FusionParams{
		DefaultFusionParams(),
		{K: 1, KeywordWeight: 2, SemanticWeight: 0.5},
		{K: 100, KeywordWeight: 0.3, SemanticWeight: 3},
	}
	for _, p := range params {
		results := Merge(ranked("k1", "k2", "k3"), ranked("s1", "s2"), WithParams(p))
		for r, id := range []string{"k1", "k2", "k3"} {
			got, ok := find(results, id)
			require.True(t, ok)
			assert.InDelta(t, p.KeywordWeight/(p.K+float64(r+1)), got.Score, 1e-12)
		}
		for r, id := range []string{"s1", "s2"} {
			got, ok := find(results, id)
			require.True(t, ok)
			assert.InDelta(t, p.SemanticWeight/(p.K+float64(r+1)), got.Score, 1e-12)
		}
	}
}

func TestMerge_Deduplicates(t *testing.T) {
	results := Merge(ranked("x", "y"), ranked("y", "x"))
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].EmailID, results[1].EmailID)
}

func TestMerge_DuplicateWithinList(t *testing.T) {
	kw := []models.RankedItem{{EmailID: "x", Rank: 1}, {EmailID: "x", Rank: 2}}
	results := Merge(kw, nil)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/61+1.0/62, results[0].Score, 1e-12)
}

func TestMerge_SortedForArbitraryInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		var kw, sem []models.RankedItem
		for i := 0; i < rng.Intn(20); i++ {
			kw = append(kw, models.RankedItem{EmailID: string(rune('a' + rng.Intn(15))), Rank: i + 1})
		}
		for i := 0; i < rng.Intn(20); i++ {
			sem = append(sem, models.RankedItem{EmailID: string(rune('a' + rng.Intn(15))), Rank: i + 1})
		}
		results := Merge(kw, sem, WithK(rng.Float64()*100), WithKeywordWeight(rng.Float64()*2), WithSemanticWeight(rng.Float64()*2))
		seen := make(map[string]bool)
		for i, r := range results {
			assert.False(t, seen[r.EmailID], "duplicate id %s", r.EmailID)
			seen[r.EmailID] = true
			assert.GreaterOrEqual(t, r.Score, 0.0)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
	}
}

func TestMerge_ZeroWeightKeepsID(t *testing.T) {
	results := Merge(ranked("k"), ranked("s"), WithKeywordWeight(0))
	require.Len(t, results, 2)
	k, ok := find(results, "k")
	require.True(t, ok)
	assert.Equal(t, 0.0, k.Score)
	assert.Equal(t, models.MatchKeyword, k.MatchSource)
	assert.Equal(t, "s", results[0].EmailID)

	results = Merge(ranked("a"), ranked("a"), WithSemanticWeight(0))
	require.Len(t, results, 1)
	assert.Equal(t, models.MatchBoth, results[0].MatchSource)
	assert.InDelta(t, 1.0/61, results[0].Score, 1e-12)
}

func TestMerge_EmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))

	results := Merge(ranked("a", "b"), nil)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].EmailID)

	results = Merge(nil, ranked("c"))
	require.Len(t, results, 1)
	assert.Equal(t, models.MatchSemantic, results[0].MatchSource)
}

func TestMerge_TieBreakIsDiscoveryOrder(t *testing.T) {
	kw := []models.RankedItem{{EmailID: "k2", Rank: 1}, {EmailID: "k1", Rank: 1}}
	sem := []models.RankedItem{{EmailID: "s2", Rank: 1}, {EmailID: "s1", Rank: 1}}
	opts := []FusionOption{WithKeywordWeight(1), WithSemanticWeight(1)}

	for i := 0; i < 10; i++ {
		results := Merge(kw, sem, opts...)
		ids := make([]string, len(results))
		for j, r := range results {
			ids[j] = r.EmailID
		}
		assert.Equal(t, []string{"k2", "k1", "s2", "s1"}, ids)
	}
}

func TestMerge_LargerKFlattens(t *testing.T) {
	small := Merge(ranked("a", "b"), nil, WithK(1))
	large := Merge(ranked("a", "b"), nil, WithK(1000))
	gapSmall := small[0].Score / small[1].Score
	gapLarge := large[0].Score / large[1].Score
	assert.Greater(t, gapSmall, gapLarge)
	assert.False(t, math.IsNaN(gapLarge))
}

func TestRankVectorResults(t *testing.T) {
	items := RankVectorResults([]vector.Result{{EmailID: "a", Similarity: 0.9}, {EmailID: "b", Similarity: 0.1}})
	assert.Equal(t, []models.RankedItem{{EmailID: "a", Rank: 1}, {EmailID: "b", Rank: 2}}, items)
}

func TestMerge_NonPositiveKUsesDefault(t *testing.T) {
	for _, k := range []float64{0, -1, -60} {
		results := Merge(ranked("a"), ranked("a"), WithK(k))
		require.Len(t, results, 1)
		assert.False(t, math.IsInf(results[0].Score, 0))
		assert.InDelta(t, 1.0/61+1.5/61, results[0].Score, 1e-12)
	}
}
