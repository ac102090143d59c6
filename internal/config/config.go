// Package config provides configuration loading and structs for the kotae server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ranking"
)

// Environment variables that override secrets and endpoints from the file.
const (
	EnvLLMAPIKey    = "KOTAE_LLM_API_KEY"
	EnvLLMBaseURL   = "KOTAE_LLM_BASE_URL"
	EnvVNPTTokenID  = "KOTAE_VNPT_TOKEN_ID"
	EnvVNPTTokenKey = "KOTAE_VNPT_TOKEN_KEY"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Safety    SafetyConfig    `yaml:"safety"`
	Router    RouterConfig    `yaml:"router"`
	Workers   WorkersConfig   `yaml:"workers"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host  string      `yaml:"host"`
	Port  int         `yaml:"port"`
	Inbox InboxConfig `yaml:"inbox"`
}

// InboxConfig holds the question inbox watched by the server.
type InboxConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *InboxConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// StorageConfig holds paths for the chunk store and the persisted indexes.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	ChunksPath       string `yaml:"chunks_path"`
	SparseType       string `yaml:"sparse_type"`
	SparseIndexPath  string `yaml:"sparse_index_path"`
	DenseType        string `yaml:"dense_type"`
	DenseIndexPath   string `yaml:"dense_index_path"`
	MatrixPath       string `yaml:"matrix_path"`
	SafetyTextsPath  string `yaml:"safety_texts_path"`
	SafetyMatrixPath string `yaml:"safety_matrix_path"`
}

// EmbeddingConfig selects the query and chunk embedder.
type EmbeddingConfig struct {
	// Provider is "llm" (the configured LLM service), "onnx" or "mock".
	Provider        string `yaml:"provider"`
	Dimensions      int    `yaml:"dimensions"`
	ModelPath       string `yaml:"model_path"`
	LibraryPath     string `yaml:"library_path"`
	MaxTokens       int    `yaml:"max_tokens"`
	UseQuantization bool   `yaml:"use_quantization"`
	// CacheSize applies to offline index builds only.
	CacheSize int `yaml:"cache_size"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	APIVersion        string        `yaml:"api_version"`
	TokenID           string        `yaml:"token_id"`
	TokenKey          string        `yaml:"token_key"`
	EmbeddingAPIKey   string        `yaml:"embedding_api_key"`
	EmbeddingTokenID  string        `yaml:"embedding_token_id"`
	EmbeddingTokenKey string        `yaml:"embedding_token_key"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig tunes retries and the circuit breaker around model calls.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	Multiplier       float64       `yaml:"multiplier"`
	Jitter           float64       `yaml:"jitter"`
	BreakerEnabled   *bool         `yaml:"breaker_enabled"`
	BreakerOpenAfter time.Duration `yaml:"breaker_open_timeout"`
}

// RetrievalConfig tunes hybrid retrieval.
type RetrievalConfig struct {
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	MinCandidates       int     `yaml:"min_candidates"`
	RRFK                float64 `yaml:"rrf_k"`
	MinRelevance        float64 `yaml:"min_relevance"`
	// DenseFilter is "native" or "subindex".
	DenseFilter   string `yaml:"dense_filter"`
	NativeHybrid  bool   `yaml:"native_hybrid"`
	ForceTemporal bool   `yaml:"force_temporal"`
	ContextTokens int    `yaml:"context_tokens"`
	// Compounds are multi-syllable terms kept as one BM25 token.
	Compounds []string              `yaml:"compounds"`
	BM25      BM25Config            `yaml:"bm25"`
	Ranking   ranking.RankingConfig `yaml:"ranking"`
	// Domains overrides the built-in per-domain parameters, keyed by domain name.
	Domains map[string]models.RetrievalConfig `yaml:"domains"`
}

type BM25Config struct {
	K1      float64 `yaml:"k1"`
	B       float64 `yaml:"b"`
	Epsilon float64 `yaml:"epsilon"`
}

// SafetyConfig holds the firewall settings.
type SafetyConfig struct {
	Enabled   *bool    `yaml:"enabled"`
	Threshold float64  `yaml:"threshold"`
	Keywords  []string `yaml:"keywords"`
}

// EnabledOrDefault returns whether the firewall runs; defaults to true when unset.
func (s *SafetyConfig) EnabledOrDefault() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// RouterConfig holds per-question routing settings.
type RouterConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RegexFallback *bool         `yaml:"regex_fallback"`
}

// RegexFallbackOrDefault defaults to true when unset.
func (r *RouterConfig) RegexFallbackOrDefault() bool {
	if r.RegexFallback != nil {
		return *r.RegexFallback
	}
	return true
}

// WorkersConfig sizes the batch worker pool. Size 0 picks a provider default.
type WorkersConfig struct {
	Size              int           `yaml:"size"`
	Max               int           `yaml:"max"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	QuestionTimeout   time.Duration `yaml:"question_timeout"`
}

type PromptsConfig struct {
	// Path is an optional YAML file overriding built-in prompts.
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault defaults to true when unset.
func (m *MetricsConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// IngestConfig controls how source documents are cut into chunks.
type IngestConfig struct {
	// ChunkSize and ChunkOverlap are counted in words.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	// Extensions lists the file types ingested from a directory, with the leading dot.
	Extensions []string `yaml:"extensions"`
	// EmbedBatchSize is the number of chunks embedded per call during index builds.
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// Load reads and parses the config file at path, applies environment overrides and
// defaults, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	for _, p := range []*string{
		&cfg.Storage.DatabasePath,
		&cfg.Storage.ChunksPath,
		&cfg.Storage.SparseIndexPath,
		&cfg.Storage.DenseIndexPath,
		&cfg.Storage.MatrixPath,
		&cfg.Storage.SafetyTextsPath,
		&cfg.Storage.SafetyMatrixPath,
		&cfg.Embedding.ModelPath,
		&cfg.Prompts.Path,
	} {
		*p = expandPath(*p, configDir)
	}
	for i := range cfg.Server.Inbox.Directories {
		cfg.Server.Inbox.Directories[i] = expandPath(cfg.Server.Inbox.Directories[i], configDir)
	}

	return &cfg, nil
}

// Default returns a config with defaults and environment overrides applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyEnv(cfg)
	ApplyDefaults(cfg)
	return cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvVNPTTokenID); v != "" {
		cfg.LLM.TokenID = v
	}
	if v := os.Getenv(EnvVNPTTokenKey); v != "" {
		cfg.LLM.TokenKey = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Safety.Threshold <= 0 || c.Safety.Threshold > 1 {
		errs = append(errs, fmt.Errorf("safety.threshold must be in (0, 1], got %v", c.Safety.Threshold))
	}
	if c.Retrieval.RRFK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.rrf_k must be positive, got %v", c.Retrieval.RRFK))
	}
	if c.Retrieval.MinRelevance < 0 {
		errs = append(errs, fmt.Errorf("retrieval.min_relevance must not be negative, got %v", c.Retrieval.MinRelevance))
	}
	switch c.Retrieval.DenseFilter {
	case "native", "subindex":
	default:
		errs = append(errs, fmt.Errorf("retrieval.dense_filter must be native or subindex, got %q", c.Retrieval.DenseFilter))
	}
	for name, rc := range c.Retrieval.Domains {
		if _, ok := models.ParseDomain(name); !ok {
			errs = append(errs, fmt.Errorf("retrieval.domains: unknown domain %q", name))
			continue
		}
		if err := rc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("retrieval.domains.%s: %w", name, err))
		}
	}
	switch c.Storage.SparseType {
	case "bm25", "bleve":
	default:
		errs = append(errs, fmt.Errorf("storage.sparse_type must be bm25 or bleve, got %q", c.Storage.SparseType))
	}
	switch c.Storage.DenseType {
	case "memory", "faiss":
	default:
		errs = append(errs, fmt.Errorf("storage.dense_type must be memory or faiss, got %q", c.Storage.DenseType))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Workers.Size < 0 || c.Workers.Max < 0 {
		errs = append(errs, errors.New("workers.size and workers.max must not be negative"))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap))
	}
	return errors.Join(errs...)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
