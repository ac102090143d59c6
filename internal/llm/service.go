// Package llm provides the language model capability used for classification,
// answer generation and embeddings, behind a single interface with one
// implementation per hosted or local provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/resilience"
	"go.uber.org/zap"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderVNPT   = "vnpt"
	ProviderMock   = "mock"
)

var (
	ErrUnknownProvider   = errors.New("unknown llm provider")
	ErrEmptyResponse     = errors.New("empty llm response")
	ErrMalformedResponse = errors.New("malformed llm response")
)

// Service is the language model capability.
type Service interface {
	Generate(ctx context.Context, user, system string) (string, error)
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	// APIVersion is sent as the api-version query parameter by the azure provider.
	APIVersion string
	// TokenID and TokenKey are the VNPT gateway credentials.
	TokenID  string
	TokenKey string
	// Embedding* override the VNPT credentials for the embedding endpoint when set.
	EmbeddingAPIKey   string
	EmbeddingTokenID  string
	EmbeddingTokenKey string

	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// MockReply is returned by the mock provider's Generate.
	MockReply      string
	MockDimensions int
}

// Observer receives one event per outbound call, after retries.
type Observer interface {
	ObserveCall(provider, operation string, elapsed time.Duration, err error)
}

type Option func(*client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithExecutor(exec *resilience.Executor) Option {
	return func(c *client) {
		if exec != nil {
			c.executor = exec
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *client) {
		c.observer = o
	}
}

// HTTPStatusError is returned for non-2xx provider responses.
type HTTPStatusError struct {
	Provider   string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "llm status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Provider, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Provider, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// New builds the provider named by cfg.Provider.
func New(cfg Config, opts ...Option) (Service, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch name {
	case ProviderOllama:
		return NewOllama(cfg, opts...), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg, opts...), nil
	case ProviderAzure:
		return NewAzure(cfg, opts...)
	case ProviderVNPT:
		return NewVNPT(cfg, opts...)
	case ProviderMock:
		return NewMock(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// ExtractJSONObject returns the span from the first '{' to the last '}', or raw when there is none.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
