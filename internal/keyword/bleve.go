package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/tegami/internal/models"
)

const (
	fieldContent   = "content"
	fieldAccountID = "account_id"

	deletePageSize = 500
)

// BleveIndex implements LexicalIndex using Bleve. An empty path keeps the index in memory.
type BleveIndex struct {
	path string

	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveIndex returns an index stored at path. Nothing is opened until Open.
func NewBleveIndex(path string) *BleveIndex {
	return &BleveIndex{path: path}
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so names and
	// invoice numbers match exactly as typed.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldContent, textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt(fieldAccountID, keywordFieldMapping)

	im.AddDocumentMapping("email", docMapping)
	im.DefaultType = "email"
	im.DefaultMapping = docMapping
	return im
}

// Open creates the index on first use or reopens an existing one. Opening an open index is a no-op.
// If the mapping changes in code, remove the index directory to force a rebuild.
func (b *BleveIndex) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return nil
	}

	if b.path == "" {
		index, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		b.index = index
		return nil
	}

	if _, err := os.Stat(b.path); err == nil {
		index, openErr := bleve.Open(b.path)
		if openErr != nil {
			return fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return nil
	}

	index, err := bleve.New(b.path, buildMapping())
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return nil
}

// Close closes the index. Closing a closed index is a no-op.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

// IsOpen reports whether the index is open.
func (b *BleveIndex) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index != nil
}

// Upsert indexes content for emailID, replacing any previous entry.
func (b *BleveIndex) Upsert(ctx context.Context, emailID, accountID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return ErrClosed
	}
	doc := map[string]interface{}{
		fieldAccountID: accountID,
		fieldContent:   content,
	}
	if err := b.index.Index(emailID, doc); err != nil {
		return fmt.Errorf("failed to index %s: %w", emailID, err)
	}
	return nil
}

// Delete removes the entry for emailID. Unknown ids are not an error.
func (b *BleveIndex) Delete(ctx context.Context, emailID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return ErrClosed
	}
	if err := b.index.Delete(emailID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", emailID, err)
	}
	return nil
}

// DeleteAllForAccount removes every entry whose account matches, one page at a time.
func (b *BleveIndex) DeleteAllForAccount(ctx context.Context, accountID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return ErrClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := bleve.NewSearchRequest(accountQuery(accountID))
		req.Size = deletePageSize
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve account lookup failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch delete failed: %w", err)
		}
	}
}

// Search runs a match query on content, optionally restricted to one account.
func (b *BleveIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]models.RankedItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.RankedItem{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return nil, ErrClosed
	}

	var q blevequery.Query
	if opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 2
		}
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(fieldContent)
		q = mq
	}
	if opts.AccountID != "" {
		q = bleve.NewConjunctionQuery(q, accountQuery(opts.AccountID))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.RankedItem, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = models.RankedItem{EmailID: hit.ID, Rank: i + 1}
	}
	return out, nil
}

// DocCount returns the number of indexed emails.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return 0, ErrClosed
	}
	return b.index.DocCount()
}

func accountQuery(accountID string) blevequery.Query {
	tq := bleve.NewTermQuery(accountID)
	tq.SetField(fieldAccountID)
	return tq
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per whitespace-separated term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(queryStr))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(fieldContent)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}
