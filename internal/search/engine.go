package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tegami/internal/embedding"
	"github.com/hyperjump/tegami/internal/keyword"
	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/storage"
	"github.com/hyperjump/tegami/internal/vector"
)

// DefaultCandidateLimit is how many lexical hits are fused per query.
const DefaultCandidateLimit = 100

// ErrSemanticUnavailable means the query could not be embedded.
var ErrSemanticUnavailable = errors.New("semantic search unavailable")

// Engine answers hybrid queries: a lexical ranking and a semantic ranking computed
// concurrently and fused with Reciprocal Rank Fusion. When one path fails the other
// answers alone; only when every requested path fails is an error returned.
type Engine struct {
	lexical  keyword.LexicalIndex
	vectors  *vector.MemoryIndex
	records  storage.RecordStore
	messages storage.MessageStore
	provider embedding.Provider

	generator      *embedding.Generator
	logger         *zap.Logger
	params         FusionParams
	vectorLimit    int
	candidateLimit int
	defaultLimit   int
	maxLimit       int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFusionParams overrides the RRF constant and weights.
func WithFusionParams(p FusionParams) Option {
	return func(e *Engine) { e.params = p }
}

// WithVectorLimit sets how many semantic hits feed the fusion.
func WithVectorLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.vectorLimit = n
		}
	}
}

// WithCandidateLimit sets how many lexical hits feed the fusion.
func WithCandidateLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.candidateLimit = n
		}
	}
}

// WithLimits sets the page size used when a query has none, and the largest page served.
// Page sizes above 100 are always capped at 100.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(e *Engine) {
		e.defaultLimit = defaultLimit
		e.maxLimit = maxLimit
	}
}

// WithGenerator sets the embedding generator used for queries.
func WithGenerator(g *embedding.Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// NewEngine creates a search engine. provider may be nil, in which case search is lexical only.
func NewEngine(
	lexical keyword.LexicalIndex,
	vectors *vector.MemoryIndex,
	records storage.RecordStore,
	messages storage.MessageStore,
	provider embedding.Provider,
	opts ...Option,
) *Engine {
	e := &Engine{
		lexical:        lexical,
		vectors:        vectors,
		records:        records,
		messages:       messages,
		provider:       provider,
		logger:         zap.NewNop(),
		params:         DefaultFusionParams(),
		vectorLimit:    vector.DefaultSearchLimit,
		candidateLimit: DefaultCandidateLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generator == nil {
		e.generator = embedding.NewGenerator(embedding.WithLogger(e.logger))
	}
	return e
}

// Search validates a copy of query, runs the enabled retrieval paths and returns one page
// of fused hits. Hits whose message is gone are dropped before ranks and Total are assigned.
func (e *Engine) Search(ctx context.Context, in *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	q := *in
	query := &q
	if query.Limit <= 0 && e.defaultLimit > 0 {
		query.Limit = e.defaultLimit
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if e.maxLimit > 0 && query.Limit > e.maxLimit {
		query.Limit = e.maxLimit
	}

	var (
		keywordItems, semanticItems []models.RankedItem
		keywordErr, semanticErr     error
		g                           errgroup.Group
	)
	if query.KeywordEnabled {
		g.Go(func() error {
			keywordItems, keywordErr = e.lexical.Search(ctx, query.Query, keyword.SearchOptions{
				Limit:        e.candidateLimit,
				AccountID:    query.AccountID,
				FuzzyEnabled: query.FuzzyEnabled,
			})
			return nil
		})
	}
	if query.SemanticEnabled {
		g.Go(func() error {
			semanticItems, semanticErr = e.semanticSearch(ctx, query.Query, query.AccountID)
			return nil
		})
	}
	_ = g.Wait()

	log := e.logger.With(zap.String("query", query.Query))
	keywordOK := query.KeywordEnabled && keywordErr == nil
	semanticOK := query.SemanticEnabled && semanticErr == nil
	if !keywordOK && !semanticOK {
		return nil, fmt.Errorf("search failed: %w", errors.Join(keywordErr, semanticErr))
	}
	if keywordErr != nil {
		log.Warn("lexical search failed; using semantic results only", zap.Error(keywordErr))
	}
	if semanticErr != nil && !errors.Is(semanticErr, ErrSemanticUnavailable) {
		log.Warn("semantic search failed; using lexical results only", zap.Error(semanticErr))
	}

	merged := Merge(keywordItems, semanticItems, WithParams(e.params))
	ids := make([]string, len(merged))
	for i, r := range merged {
		ids[i] = r.EmailID
	}
	msgs, err := e.messages.GetMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	present := merged[:0]
	for _, r := range merged {
		if _, ok := msgs[r.EmailID]; !ok {
			log.Debug("skipping hit without message", zap.String("email_id", r.EmailID))
			continue
		}
		present = append(present, r)
	}

	page := paginate(present, query.Offset, query.Limit)
	resp := &models.SearchResponse{
		Results:           make([]*models.SearchHit, 0, len(page)),
		Total:             len(present),
		Query:             query.Query,
		SemanticAvailable: semanticOK,
	}
	for i, r := range page {
		resp.Results = append(resp.Results, &models.SearchHit{
			Message:     msgs[r.EmailID],
			Score:       r.Score,
			MatchSource: r.MatchSource,
			Rank:        query.Offset + i + 1,
		})
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// semanticSearch embeds the query and ranks stored vectors. With an account filter, a wider
// candidate set is searched and narrowed to the account before trimming to the vector limit.
func (e *Engine) semanticSearch(ctx context.Context, text, accountID string) ([]models.RankedItem, error) {
	emb := e.generator.EmbedQuery(ctx, text, e.provider)
	// A zero vector has no direction; every similarity would be 0.
	if emb == nil || vector.L2Norm(emb) == 0 {
		return nil, ErrSemanticUnavailable
	}
	if accountID == "" {
		return RankVectorResults(e.vectors.Search(emb, e.vectorLimit)), nil
	}

	limit := e.candidateLimit
	if limit < e.vectorLimit {
		limit = e.vectorLimit
	}
	hits := e.vectors.Search(emb, limit)
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.EmailID
	}
	accounts, err := e.records.AccountsFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("account filter: %w", err)
	}
	filtered := hits[:0]
	for _, h := range hits {
		if accounts[h.EmailID] == accountID {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) > e.vectorLimit {
		filtered = filtered[:e.vectorLimit]
	}
	return RankVectorResults(filtered), nil
}

func paginate(results []models.MergedResult, offset, limit int) []models.MergedResult {
	if offset > len(results) {
		offset = len(results)
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
