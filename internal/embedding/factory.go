package embedding

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/tegami/internal/config"
)

// NewProvider builds the provider named by cfg.Provider and wraps it with an LRU cache
// when cfg.CacheSize > 0. The returned closer releases model resources; it is never nil.
func NewProvider(cfg config.EmbeddingConfig) (Provider, io.Closer, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	var (
		p      Provider
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "mock":
		p = NewMockProvider(cfg.Dimensions)
	case "disabled", "none":
		return DisabledProvider{}, closer, nil
	case "ollama":
		p = NewOllamaProvider(cfg.BaseURL, cfg.Model, timeout)
	case "openai":
		p = NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions, timeout)
	case "gemini":
		p = NewGeminiProvider(cfg.APIKey, cfg.Model)
	case "onnx":
		onnx, err := NewONNXProvider(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load onnx model: %w", err)
		}
		p, closer = onnx, onnx
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	cached, err := NewCachedProvider(p, cfg.CacheSize)
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return cached, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
