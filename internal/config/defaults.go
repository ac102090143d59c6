package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/chunks.db"
	}
	if cfg.Storage.ChunksPath == "" {
		cfg.Storage.ChunksPath = "/usr/local/var/kotae/data/chunks.json"
	}
	if cfg.Storage.SparseType == "" {
		cfg.Storage.SparseType = "bm25"
	}
	if cfg.Storage.SparseIndexPath == "" {
		if cfg.Storage.SparseType == "bleve" {
			cfg.Storage.SparseIndexPath = "/usr/local/var/kotae/data/indices/bleve"
		} else {
			cfg.Storage.SparseIndexPath = "/usr/local/var/kotae/data/indices/bm25.gob"
		}
	}
	if cfg.Storage.DenseType == "" {
		cfg.Storage.DenseType = "memory"
	}
	if cfg.Storage.DenseIndexPath == "" {
		cfg.Storage.DenseIndexPath = "/usr/local/var/kotae/data/indices/dense.idx"
	}
	if cfg.Storage.MatrixPath == "" {
		cfg.Storage.MatrixPath = "/usr/local/var/kotae/data/indices/embeddings.bin"
	}
	if cfg.Storage.SafetyTextsPath == "" {
		cfg.Storage.SafetyTextsPath = "/usr/local/var/kotae/data/safety/texts.json"
	}
	if cfg.Storage.SafetyMatrixPath == "" {
		cfg.Storage.SafetyMatrixPath = "/usr/local/var/kotae/data/safety/embeddings.bin"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "llm"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.Retry.MaxAttempts == 0 {
		cfg.LLM.Retry.MaxAttempts = 3
	}
	if cfg.LLM.Retry.InitialBackoff == 0 {
		cfg.LLM.Retry.InitialBackoff = 2 * time.Second
	}
	if cfg.LLM.Retry.MaxBackoff == 0 {
		cfg.LLM.Retry.MaxBackoff = 8 * time.Second
	}
	if cfg.LLM.Retry.Multiplier == 0 {
		cfg.LLM.Retry.Multiplier = 2.0
	}
	if cfg.LLM.Retry.Jitter == 0 {
		cfg.LLM.Retry.Jitter = 0.2
	}

	if cfg.Retrieval.CandidateMultiplier == 0 {
		cfg.Retrieval.CandidateMultiplier = 4
	}
	if cfg.Retrieval.MinCandidates == 0 {
		cfg.Retrieval.MinCandidates = 20
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.DenseFilter == "" {
		cfg.Retrieval.DenseFilter = "native"
	}
	if cfg.Retrieval.ContextTokens == 0 {
		cfg.Retrieval.ContextTokens = 2000
	}
	if cfg.Retrieval.BM25.K1 == 0 {
		cfg.Retrieval.BM25.K1 = 1.5
	}
	if cfg.Retrieval.BM25.B == 0 {
		cfg.Retrieval.BM25.B = 0.75
	}
	if cfg.Retrieval.BM25.Epsilon == 0 {
		cfg.Retrieval.BM25.Epsilon = 0.25
	}
	cfg.Retrieval.Ranking.ApplyDefaults()

	if cfg.Safety.Threshold == 0 {
		cfg.Safety.Threshold = 0.85
	}

	if cfg.Router.Timeout == 0 {
		cfg.Router.Timeout = 60 * time.Second
	}

	if cfg.Workers.Max == 0 {
		cfg.Workers.Max = 16
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 120
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 30
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Ingest.EmbedBatchSize == 0 {
		cfg.Ingest.EmbedBatchSize = 32
	}
}
