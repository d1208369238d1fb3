package vector

import (
	"sort"
	"sync"

	"github.com/hyperjump/tegami/internal/models"
)

// MemoryIndex keeps one embedding per email id and answers brute-force cosine queries.
// Vectors of different lengths may coexist (e.g. across embedding model upgrades);
// a query only ever compares against vectors of its own length.
//
// Reads share the lock; Add, Remove, RemoveAll and Load take it exclusively.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]float32)}
}

// Add inserts or replaces the vector for emailID. Empty embeddings are ignored.
func (m *MemoryIndex) Add(emailID string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	vec := cloneVector(embedding)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[emailID] = vec
}

// Remove deletes the vector for emailID if present.
func (m *MemoryIndex) Remove(emailID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, emailID)
}

// RemoveAll clears the index.
func (m *MemoryIndex) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]float32)
}

// Load inserts or replaces every entry in one exclusive section.
// Entries without an embedding are skipped.
func (m *MemoryIndex) Load(entries []models.VectorEntry) {
	copies := make([]models.VectorEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		copies = append(copies, models.VectorEntry{EmailID: e.EmailID, Embedding: cloneVector(e.Embedding)})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range copies {
		m.entries[e.EmailID] = e.Embedding
	}
}

// Count returns the number of stored vectors.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Contains reports whether emailID has a stored vector.
func (m *MemoryIndex) Contains(emailID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[emailID]
	return ok
}

// Dimensions returns the distinct vector lengths currently stored, ascending.
func (m *MemoryIndex) Dimensions() []int {
	m.mu.RLock()
	seen := make(map[int]struct{})
	for _, v := range m.entries {
		seen[len(v)] = struct{}{}
	}
	m.mu.RUnlock()
	dims := make([]int, 0, len(seen))
	for d := range seen {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims
}

// Search returns up to limit entries by cosine similarity to query, highest first.
// Only vectors whose length equals len(query) are compared; others are skipped.
// A limit <= 0 means DefaultSearchLimit. Equal similarities are ordered by email id.
func (m *MemoryIndex) Search(query []float32, limit int) []Result {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(query) == 0 {
		return []Result{}
	}
	queryNorm := L2Norm(query)

	m.mu.RLock()
	hits := make([]Result, 0, len(m.entries))
	for id, vec := range m.entries {
		if len(vec) != len(query) {
			continue
		}
		hits = append(hits, Result{EmailID: id, Similarity: cosine(query, vec, queryNorm)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].EmailID < hits[j].EmailID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
