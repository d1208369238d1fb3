// Package config provides configuration loading and structs for the tegami search core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" toml:"debug"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// StorageConfig holds paths for the record database and the lexical index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path" toml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path" toml:"bleve_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
// Provider is one of mock, ollama, openai, gemini, onnx or disabled.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" toml:"provider"`
	Model      string `yaml:"model" toml:"model"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens" toml:"max_tokens"`
	ModelPath  string `yaml:"model_path" toml:"model_path"`
	CacheSize  int    `yaml:"cache_size" toml:"cache_size"`
	// Timeout is the per-request timeout for remote providers, in seconds.
	Timeout int `yaml:"timeout" toml:"timeout"`
}

// SearchConfig holds query limits and rank fusion tuning.
type SearchConfig struct {
	VectorLimit    int      `yaml:"vector_limit" toml:"vector_limit"`
	CandidateLimit int      `yaml:"candidate_limit" toml:"candidate_limit"`
	DefaultLimit   int      `yaml:"default_limit" toml:"default_limit"`
	MaxLimit       int      `yaml:"max_limit" toml:"max_limit"`
	RRFK           float64  `yaml:"rrf_k" toml:"rrf_k"`
	KeywordWeight  *float64 `yaml:"keyword_weight" toml:"keyword_weight"`
	SemanticWeight *float64 `yaml:"semantic_weight" toml:"semantic_weight"`
}

// KeywordWeightOrDefault returns the keyword fusion weight; 1.0 when unset.
// An explicit 0 is kept.
func (s *SearchConfig) KeywordWeightOrDefault() float64 {
	if s.KeywordWeight != nil {
		return *s.KeywordWeight
	}
	return DefaultKeywordWeight
}

// SemanticWeightOrDefault returns the semantic fusion weight; 1.5 when unset.
func (s *SearchConfig) SemanticWeightOrDefault() float64 {
	if s.SemanticWeight != nil {
		return *s.SemanticWeight
	}
	return DefaultSemanticWeight
}

// IndexConfig holds indexing and repair settings.
type IndexConfig struct {
	Workers      int  `yaml:"workers" toml:"workers"`
	StrictErrors bool `yaml:"strict_errors" toml:"strict_errors"`
	// BackfillSchedule is a five-field cron spec. Unset means the default nightly run;
	// an empty string disables scheduled backfill.
	BackfillSchedule *string `yaml:"backfill_schedule" toml:"backfill_schedule"`
}

// BackfillScheduleOrDefault returns the cron spec for the backfill job, or "" when disabled.
func (i *IndexConfig) BackfillScheduleOrDefault() string {
	if i.BackfillSchedule != nil {
		return strings.TrimSpace(*i.BackfillSchedule)
	}
	return DefaultBackfillSchedule
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if cfg.Search.RRFK < 0 {
		return nil, fmt.Errorf("invalid config: search.rrf_k must be positive, got %g", cfg.Search.RRFK)
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path, as TOML when path ends in .toml and YAML otherwise.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
