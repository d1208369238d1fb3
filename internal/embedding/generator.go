package embedding

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Generator wraps a Provider and returns unit-length vectors. It never returns an error:
// a nil vector means no embedding could be produced.
type Generator struct {
	logger *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger used to report provider failures.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EmbedQuery returns the normalized embedding of text, or nil when provider is nil or
// unavailable, the call fails, or the provider returns an empty vector.
func (g *Generator) EmbedQuery(ctx context.Context, text string, provider Provider) []float32 {
	if provider == nil || !provider.IsAvailable() {
		return nil
	}
	raw, err := provider.Embed(ctx, text)
	if err != nil {
		g.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	if len(raw) == 0 {
		g.logger.Warn("embedding failed", zap.Error(ErrEmptyEmbedding))
		return nil
	}
	return Normalize(raw)
}

// EmbedBatch embeds each text independently. The result has one entry per input, in
// order; an entry is nil when that text could not be embedded.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string, provider Provider) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = g.EmbedQuery(ctx, text, provider)
	}
	return out
}

// Normalize returns v scaled to unit L2 norm as a new slice.
// A vector whose norm is zero is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
