package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/tegami/internal/embedding"
	"github.com/hyperjump/tegami/internal/keyword"
	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/storage"
	"github.com/hyperjump/tegami/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	store    *storage.SQLiteStorage
	lexical  *keyword.BleveIndex
	vectors  *vector.MemoryIndex
	provider *embedding.StubProvider
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	lexical := keyword.NewBleveIndex("")
	require.NoError(t, lexical.Open())
	t.Cleanup(func() { _ = lexical.Close() })

	provider := embedding.NewStubProvider()
	provider.Vectors["budget"] = []float32{1, 0, 0}

	f := &engineFixture{store: store, lexical: lexical, vectors: vector.NewMemoryIndex(), provider: provider}
	f.add(t, "m1", "A", "quarterly budget review", []float32{1, 0, 0})
	f.add(t, "m2", "A", "team lunch friday", []float32{0, 1, 0})
	f.add(t, "m3", "B", "budget approval", []float32{0.9, 0.1, 0})
	f.add(t, "m4", "A", "budget draft", nil)
	return f
}

func (f *engineFixture) add(t *testing.T, id, account, subject string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.PutMessage(ctx, &models.Message{
		ID: id, AccountID: account, Subject: subject, SenderAddress: "someone@example.com", ReceivedAt: time.Now(),
	}))
	f.indexOnly(t, id, account, subject, vec)
}

// indexOnly writes the search entries without a backing message.
func (f *engineFixture) indexOnly(t *testing.T, id, account, content string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertRecord(ctx, &models.SearchRecord{
		EmailID: id, AccountID: account, Content: content, Embedding: vec, UpdatedAt: time.Now(),
	}))
	require.NoError(t, f.lexical.Upsert(ctx, id, account, content))
	if vec != nil {
		f.vectors.Add(id, vec)
	}
}

func (f *engineFixture) engine(provider embedding.Provider) *Engine {
	return NewEngine(f.lexical, f.vectors, f.store, f.store, provider)
}

func sources(resp *models.SearchResponse) map[string]models.MatchSource {
	out := make(map[string]models.MatchSource, len(resp.Results))
	for _, hit := range resp.Results {
		out[hit.Message.ID] = hit.MatchSource
	}
	return out
}

func TestEngine_HybridSearch(t *testing.T) {
	f := newEngineFixture(t)

	resp, err := f.engine(f.provider).Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.NoError(t, err)

	assert.True(t, resp.SemanticAvailable)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, "budget", resp.Query)
	assert.Equal(t, map[string]models.MatchSource{
		"m1": models.MatchBoth,
		"m3": models.MatchBoth,
		"m4": models.MatchKeyword,
		"m2": models.MatchSemantic,
	}, sources(resp))

	for i, hit := range resp.Results {
		assert.Equal(t, i+1, hit.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Results[i-1].Score, hit.Score)
		}
	}
	// m4 has no embedding and only a single keyword contribution.
	assert.Equal(t, "m4", resp.Results[len(resp.Results)-1].Message.ID)
}

func TestEngine_AccountFilterAppliesToBothPaths(t *testing.T) {
	f := newEngineFixture(t)

	resp, err := f.engine(f.provider).Search(context.Background(), &models.SearchQuery{Query: "budget", AccountID: "A"})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Total)
	for _, hit := range resp.Results {
		assert.Equal(t, "A", hit.Message.AccountID)
	}
	assert.NotContains(t, sources(resp), "m3")
	assert.Equal(t, models.MatchBoth, sources(resp)["m1"])
}

func TestEngine_FallsBackToKeywordWithoutProvider(t *testing.T) {
	f := newEngineFixture(t)

	for name, provider := range map[string]embedding.Provider{
		"disabled": embedding.DisabledProvider{},
		"nil":      nil,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := f.engine(provider).Search(context.Background(), &models.SearchQuery{Query: "budget"})
			require.NoError(t, err)
			assert.False(t, resp.SemanticAvailable)
			assert.Equal(t, 3, resp.Total)
			for _, src := range sources(resp) {
				assert.Equal(t, models.MatchKeyword, src)
			}
		})
	}
}

func TestEngine_FallsBackToSemanticWhenLexicalFails(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.lexical.Close())

	resp, err := f.engine(f.provider).Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.NoError(t, err)

	assert.True(t, resp.SemanticAvailable)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "m1", resp.Results[0].Message.ID)
	assert.Equal(t, "m3", resp.Results[1].Message.ID)
	assert.Equal(t, "m2", resp.Results[2].Message.ID)
	for _, hit := range resp.Results {
		assert.Equal(t, models.MatchSemantic, hit.MatchSource)
	}
}

func TestEngine_ErrorsWhenEveryPathFails(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.lexical.Close())

	_, err := f.engine(embedding.DisabledProvider{}).Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.Error(t, err)
	assert.ErrorIs(t, err, keyword.ErrClosed)

	_, err = f.engine(f.provider).Search(context.Background(), &models.SearchQuery{Query: "budget", KeywordEnabled: true})
	assert.ErrorIs(t, err, keyword.ErrClosed)
}

func TestEngine_SingleMode(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(f.provider)

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget", SemanticEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	for _, src := range sources(resp) {
		assert.Equal(t, models.MatchSemantic, src)
	}

	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "budget", KeywordEnabled: true})
	require.NoError(t, err)
	assert.False(t, resp.SemanticAvailable)
	assert.Equal(t, 3, resp.Total)
	for _, src := range sources(resp) {
		assert.Equal(t, models.MatchKeyword, src)
	}

	_, err = e.Search(context.Background(), &models.SearchQuery{Query: "budget", SemanticEnabled: true, AccountID: "nobody"})
	require.NoError(t, err)
}

func TestEngine_Pagination(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(f.provider)

	full, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.NoError(t, err)

	page, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget", Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Results, 2)
	assert.Equal(t, full.Results[1].Message.ID, page.Results[0].Message.ID)
	assert.Equal(t, full.Results[2].Message.ID, page.Results[1].Message.ID)
	assert.Equal(t, 2, page.Results[0].Rank)
	assert.Equal(t, 3, page.Results[1].Rank)

	past, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past.Results)
	assert.Equal(t, 4, past.Total)
}

func TestEngine_SkipsHitsWithoutMessage(t *testing.T) {
	f := newEngineFixture(t)
	f.indexOnly(t, "ghost", "A", "budget ghost", nil)

	resp, err := f.engine(embedding.DisabledProvider{}).Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Results, 3)
	assert.NotContains(t, sources(resp), "ghost")
	for i, hit := range resp.Results {
		assert.Equal(t, i+1, hit.Rank)
	}
}

func TestEngine_LeavesCallerQueryUntouched(t *testing.T) {
	f := newEngineFixture(t)
	query := &models.SearchQuery{Query: "  budget  ", Limit: 500, Offset: -2}
	_, err := f.engine(f.provider).Search(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, models.SearchQuery{Query: "  budget  ", Limit: 500, Offset: -2}, *query)
}

func TestEngine_ZeroQueryVectorDisablesSemantic(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.Vectors["lunch"] = []float32{0, 0, 0}

	resp, err := f.engine(f.provider).Search(context.Background(), &models.SearchQuery{Query: "lunch"})
	require.NoError(t, err)
	assert.False(t, resp.SemanticAvailable)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m2", resp.Results[0].Message.ID)
	assert.Equal(t, models.MatchKeyword, resp.Results[0].MatchSource)
}

func TestEngine_FusionParams(t *testing.T) {
	f := newEngineFixture(t)
	// With keyword weight zeroed the semantic ranking decides the order.
	e := NewEngine(f.lexical, f.vectors, f.store, f.store, f.provider,
		WithFusionParams(FusionParams{K: DefaultRRFK, KeywordWeight: 0, SemanticWeight: 1}))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m1", resp.Results[0].Message.ID)
}

func TestEngine_VectorLimit(t *testing.T) {
	f := newEngineFixture(t)
	e := NewEngine(f.lexical, f.vectors, f.store, f.store, f.provider, WithVectorLimit(1))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget", SemanticEnabled: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m1", resp.Results[0].Message.ID)

	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "budget", SemanticEnabled: true, AccountID: "A"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m1", resp.Results[0].Message.ID)
}

func TestEngine_RejectsEmptyQuery(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine(f.provider).Search(context.Background(), &models.SearchQuery{Query: "  "})
	assert.Error(t, err)
}

func TestEngine_FuzzyKeywordSearch(t *testing.T) {
	f := newEngineFixture(t)
	e := f.engine(embedding.DisabledProvider{})

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "budgte", KeywordEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total)

	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "budgte", KeywordEnabled: true, FuzzyEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
}

func TestEngine_Limits(t *testing.T) {
	f := newEngineFixture(t)
	e := NewEngine(f.lexical, f.vectors, f.store, f.store, f.provider, WithLimits(1, 3))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "budget"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)

	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "budget", Limit: 50})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 4, resp.Total)
}
