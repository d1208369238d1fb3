package config

// Defaults shared with the packages that consume them.
const (
	DefaultKeywordWeight    = 1.0
	DefaultSemanticWeight   = 1.5
	DefaultRRFK             = 60.0
	DefaultVectorLimit      = 20
	DefaultBackfillSchedule = "0 3 * * *"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tegami/data/db/search.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/tegami/data/indices/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.Search.VectorLimit == 0 {
		cfg.Search.VectorLimit = DefaultVectorLimit
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 100
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = DefaultRRFK
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = 4
	}
}
