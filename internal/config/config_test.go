package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
embedding:
  provider: ollama
  model: nomic-embed-text
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
debug = true

[server]
port = 9100

[search]
rrf_k = 30.0
keyword_weight = 0.0

[index]
workers = 2
strict_errors = true
backfill_schedule = ""
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug || cfg.Server.Port != 9100 {
		t.Errorf("unexpected config: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
	if cfg.Search.RRFK != 30 {
		t.Errorf("rrf_k = %f, want 30", cfg.Search.RRFK)
	}
	if got := cfg.Search.KeywordWeightOrDefault(); got != 0 {
		t.Errorf("explicit zero keyword weight should be kept, got %f", got)
	}
	if got := cfg.Search.SemanticWeightOrDefault(); got != DefaultSemanticWeight {
		t.Errorf("semantic weight = %f, want default", got)
	}
	if cfg.Index.Workers != 2 || !cfg.Index.StrictErrors {
		t.Errorf("unexpected index config: %+v", cfg.Index)
	}
	if got := cfg.Index.BackfillScheduleOrDefault(); got != "" {
		t.Errorf("empty backfill_schedule should disable the job, got %q", got)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/search.db"
  bleve_index_path: "./data/indices/bleve"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "search.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantBleve := filepath.Join(dir, "data", "indices", "bleve")
	if cfg.Storage.BleveIndexPath != wantBleve {
		t.Errorf("bleve_index_path = %s, want %s", cfg.Storage.BleveIndexPath, wantBleve)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_negativeRRFK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("search:\n  rrf_k: -1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative rrf_k")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("default limit: got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.VectorLimit != 20 {
		t.Errorf("default vector limit: got %d", cfg.Search.VectorLimit)
	}
	if cfg.Search.RRFK != 60 {
		t.Errorf("default rrf_k: got %f", cfg.Search.RRFK)
	}
	if cfg.Search.KeywordWeightOrDefault() != 1.0 || cfg.Search.SemanticWeightOrDefault() != 1.5 {
		t.Errorf("default weights: got %f/%f", cfg.Search.KeywordWeightOrDefault(), cfg.Search.SemanticWeightOrDefault())
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("default provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Index.Workers != 4 {
		t.Errorf("default workers: got %d", cfg.Index.Workers)
	}
	if cfg.Index.BackfillScheduleOrDefault() != "0 3 * * *" {
		t.Errorf("default backfill schedule: got %q", cfg.Index.BackfillScheduleOrDefault())
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"saved.yaml", "saved.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			cfg := &Config{
				Server:  ServerConfig{Host: "localhost", Port: 9090},
				Storage: StorageConfig{DatabasePath: "/tmp/db", BleveIndexPath: "/tmp/bleve"},
			}
			if err := Save(path, cfg); err != nil {
				t.Fatal(err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Server.Port != 9090 {
				t.Errorf("loaded port: got %d", loaded.Server.Port)
			}
			if loaded.Storage.DatabasePath != "/tmp/db" {
				t.Errorf("loaded database_path: got %s", loaded.Storage.DatabasePath)
			}
		})
	}
}
