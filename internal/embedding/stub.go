package embedding

import (
	"context"
	"sync"
)

// StubProvider is a scripted provider. Vectors maps text to the vector to return,
// Errors maps text to the error to return, and Fallback answers texts found in neither.
// It is safe for concurrent use.
type StubProvider struct {
	mu        sync.Mutex
	available bool
	Vectors   map[string][]float32
	Errors    map[string]error
	Fallback  []float32
	calls     int
}

// NewStubProvider returns an available stub with no scripted answers.
func NewStubProvider() *StubProvider {
	return &StubProvider{
		available: true,
		Vectors:   make(map[string][]float32),
		Errors:    make(map[string]error),
	}
}

// SetAvailable toggles availability.
func (s *StubProvider) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = available
}

// IsAvailable reports the scripted availability.
func (s *StubProvider) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Embed returns the scripted answer for text.
func (s *StubProvider) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if !s.available {
		return nil, ErrUnavailable
	}
	if err, ok := s.Errors[text]; ok {
		return nil, err
	}
	if v, ok := s.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return append([]float32(nil), s.Fallback...), nil
}

// Calls returns how many times Embed was invoked.
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
