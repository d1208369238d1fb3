// Package keyword provides the lexical (full-text) index over email search content.
package keyword

import (
	"context"
	"errors"

	"github.com/hyperjump/tegami/internal/models"
)

// ErrClosed is returned by operations on an index that is not open.
var ErrClosed = errors.New("lexical index is closed")

// DefaultSearchLimit is used when SearchOptions.Limit is not positive.
const DefaultSearchLimit = 100

// SearchOptions controls a lexical search.
type SearchOptions struct {
	Limit int
	// AccountID restricts hits to one account when non-empty.
	AccountID string
	// FuzzyEnabled matches terms within Fuzziness edits (1 or 2, default 2) for typo tolerance.
	FuzzyEnabled bool
	Fuzziness    int
}

// LexicalIndex is a full-text index keyed by email id. Upserting an id replaces its entry.
type LexicalIndex interface {
	Open() error
	Close() error
	Upsert(ctx context.Context, emailID, accountID, content string) error
	Delete(ctx context.Context, emailID string) error
	DeleteAllForAccount(ctx context.Context, accountID string) error
	// Search returns email ids in relevance order with 1-based ranks.
	Search(ctx context.Context, query string, opts SearchOptions) ([]models.RankedItem, error)
	DocCount() (uint64, error)
}
