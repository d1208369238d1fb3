// Package models defines core data structures for messages, search records, queries, and results.
package models

import "time"

// Message is the read-only view of a synced email that the search core indexes.
// It is owned by the external message store; the search core never writes it.
type Message struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Subject       string    `json:"subject"`
	SenderName    string    `json:"sender_name,omitempty"`
	SenderAddress string    `json:"sender_address"`
	BodyExcerpt   string    `json:"body_excerpt,omitempty"`
	ReceivedAt    time.Time `json:"received_at,omitempty"`
}

// SearchRecord is the derived, rebuildable search entry for one email.
// Embedding is nil when no provider was available at index time.
type SearchRecord struct {
	EmailID   string    `json:"email_id"`
	AccountID string    `json:"account_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEmbedding reports whether the record carries a vector.
func (r *SearchRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// VectorEntry is the in-memory counterpart of a SearchRecord's embedding.
type VectorEntry struct {
	EmailID   string
	Embedding []float32
}
