//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXProvider stub type when built without CGO (see onnx.go for the real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO (ONNX not available).
func NewONNXProvider(_ string, _, _ int) (*ONNXProvider, error) {
	return nil, errors.New("ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// IsAvailable always returns false.
func (e *ONNXProvider) IsAvailable() bool { return false }

// Embed always returns ErrUnavailable.
func (e *ONNXProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (e *ONNXProvider) Close() error { return nil }
