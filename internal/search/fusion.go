// Package search provides reciprocal rank fusion and the hybrid query engine.
package search

import (
	"sort"

	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/vector"
)

// Default fusion parameters.
const (
	DefaultRRFK           = 60.0
	DefaultKeywordWeight  = 1.0
	DefaultSemanticWeight = 1.5
)

// FusionParams controls Reciprocal Rank Fusion. K dampens how fast rank position decays;
// a non-positive K is replaced by DefaultRRFK.
type FusionParams struct {
	K              float64
	KeywordWeight  float64
	SemanticWeight float64
}

// DefaultFusionParams returns k=60, keyword weight 1.0, semantic weight 1.5.
func DefaultFusionParams() FusionParams {
	return FusionParams{K: DefaultRRFK, KeywordWeight: DefaultKeywordWeight, SemanticWeight: DefaultSemanticWeight}
}

// FusionOption overrides one fusion parameter.
type FusionOption func(*FusionParams)

// WithK sets the rank damping constant.
func WithK(k float64) FusionOption {
	return func(p *FusionParams) { p.K = k }
}

// WithKeywordWeight sets the keyword list weight.
func WithKeywordWeight(w float64) FusionOption {
	return func(p *FusionParams) { p.KeywordWeight = w }
}

// WithSemanticWeight sets the semantic list weight.
func WithSemanticWeight(w float64) FusionOption {
	return func(p *FusionParams) { p.SemanticWeight = w }
}

// WithParams replaces all parameters at once.
func WithParams(params FusionParams) FusionOption {
	return func(p *FusionParams) { *p = params }
}

type fusedEntry struct {
	score    float64
	keyword  bool
	semantic bool
}

// Merge fuses a keyword and a semantic ranked list with Reciprocal Rank Fusion.
// Each occurrence of an id at rank r adds weight/(K+r) to that id's score. Every id
// appears once in the output, sorted by score descending. Equal scores keep the order
// in which ids were first seen: keyword list order, then semantic-only ids in
// semantic list order.
func Merge(keyword, semantic []models.RankedItem, opts ...FusionOption) []models.MergedResult {
	p := DefaultFusionParams()
	for _, opt := range opts {
		opt(&p)
	}
	if p.K <= 0 {
		p.K = DefaultRRFK
	}

	entries := make(map[string]*fusedEntry, len(keyword)+len(semantic))
	ids := make([]string, 0, len(keyword)+len(semantic))
	get := func(id string) *fusedEntry {
		e, ok := entries[id]
		if !ok {
			e = &fusedEntry{}
			entries[id] = e
			ids = append(ids, id)
		}
		return e
	}

	for _, item := range keyword {
		e := get(item.EmailID)
		e.score += p.KeywordWeight / (p.K + float64(item.Rank))
		e.keyword = true
	}
	for _, item := range semantic {
		e := get(item.EmailID)
		e.score += p.SemanticWeight / (p.K + float64(item.Rank))
		e.semantic = true
	}

	results := make([]models.MergedResult, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		results = append(results, models.MergedResult{
			EmailID:     id,
			Score:       e.score,
			MatchSource: matchSource(e),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func matchSource(e *fusedEntry) models.MatchSource {
	switch {
	case e.keyword && e.semantic:
		return models.MatchBoth
	case e.semantic:
		return models.MatchSemantic
	default:
		return models.MatchKeyword
	}
}

// RankVectorResults converts similarity hits, already sorted best first, into 1-based ranks.
func RankVectorResults(results []vector.Result) []models.RankedItem {
	items := make([]models.RankedItem, len(results))
	for i, r := range results {
		items[i] = models.RankedItem{EmailID: r.EmailID, Rank: i + 1}
	}
	return items
}
