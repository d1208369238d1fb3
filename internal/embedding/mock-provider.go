package embedding

import (
	"context"
	"math"
)

// MockProvider produces deterministic embeddings derived from the text hash so that the
// same text always gets the same vector. Vectors are not normalized.
type MockProvider struct {
	dimensions int
}

// NewMockProvider returns a provider that produces embeddings of the given dimensions.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockProvider{dimensions: dimensions}
}

// IsAvailable always returns true.
func (p *MockProvider) IsAvailable() bool { return true }

// Embed returns a deterministic embedding based on the text hash.
func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := HashString(text)
	emb := make([]float32, p.dimensions)
	for i := 0; i < p.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (p *MockProvider) Dimensions() int {
	return p.dimensions
}
