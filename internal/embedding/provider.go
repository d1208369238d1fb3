// Package embedding turns text into retrieval-ready vectors. Providers do the inference;
// Generator normalizes their output and degrades every failure to absence.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned by Embed when the provider cannot serve requests.
	ErrUnavailable = errors.New("embedding provider unavailable")
	// ErrEmptyEmbedding is returned when a provider answers with no vector.
	ErrEmptyEmbedding = errors.New("embedding provider returned an empty vector")
)

// Provider is an embedding capability: a local model, a remote API, or nothing at all.
type Provider interface {
	IsAvailable() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DisabledProvider is never available.
type DisabledProvider struct{}

// IsAvailable always returns false.
func (DisabledProvider) IsAvailable() bool { return false }

// Embed always returns ErrUnavailable.
func (DisabledProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
