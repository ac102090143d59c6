package llm

import (
	"context"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama talks to a local Ollama server.
type Ollama struct {
	c          *client
	model      string
	embedModel string
	options    map[string]any
}

func NewOllama(cfg Config, opts ...Option) *Ollama {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	embedModel := cfg.EmbeddingModel
	if embedModel == "" {
		embedModel = cfg.Model
	}
	options := map[string]any{}
	if cfg.Temperature > 0 {
		options["temperature"] = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}
	return &Ollama{
		c:          newClient(ProviderOllama, base, cfg.Timeout, opts...),
		model:      cfg.Model,
		embedModel: embedModel,
		options:    options,
	}
}

func (o *Ollama) Generate(ctx context.Context, user, system string) (string, error) {
	req := map[string]any{
		"model":  o.model,
		"prompt": user,
		"stream": false,
	}
	if system != "" {
		req["system"] = system
	}
	if len(o.options) > 0 {
		req["options"] = o.options
	}

	var resp struct {
		Response string `json:"response"`
	}
	if err := o.c.postJSON(ctx, "generate", o.c.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (o *Ollama) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	req := map[string]any{
		"model": o.embedModel,
		"input": []string{text},
	}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.c.postJSON(ctx, "embed", o.c.baseURL+"/api/embed", nil, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Embeddings[0], nil
}
