// Package vector provides the in-memory semantic index over email embeddings.
package vector

// DefaultSearchLimit is the number of hits Search returns when the caller passes no limit.
const DefaultSearchLimit = 20

// Result is a single similarity hit.
type Result struct {
	EmailID    string
	Similarity float64 // cosine similarity in [-1, 1]
}
