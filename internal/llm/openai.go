package llm

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (r chatResponse) text() (string, error) {
	if len(r.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(r.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func buildMessages(user, system string) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	return append(msgs, chatMessage{Role: "user", Content: user})
}

// OpenAI speaks the OpenAI chat completions API. Azure deployments use the same
// wire format with deployment-scoped URLs and an api-key header.
type OpenAI struct {
	c           *client
	apiKey      string
	model       string
	embedModel  string
	temperature float64
	maxTokens   int

	azure      bool
	apiVersion string
}

func NewOpenAI(cfg Config, opts ...Option) *OpenAI {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIURL
	}
	return &OpenAI{
		c:           newClient(ProviderOpenAI, base, cfg.Timeout, opts...),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		embedModel:  cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func NewAzure(cfg Config, opts ...Option) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("azure provider requires base_url (the resource endpoint)")
	}
	if cfg.APIVersion == "" {
		return nil, errors.New("azure provider requires api_version")
	}
	return &OpenAI{
		c:           newClient(ProviderAzure, cfg.BaseURL, cfg.Timeout, opts...),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		embedModel:  cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		azure:       true,
		apiVersion:  cfg.APIVersion,
	}, nil
}

func (o *OpenAI) endpoint(model, path string) string {
	if !o.azure {
		return o.c.baseURL + path
	}
	return o.c.baseURL + "/openai/deployments/" + url.PathEscape(model) + path +
		"?api-version=" + url.QueryEscape(o.apiVersion)
}

func (o *OpenAI) headers() map[string]string {
	if o.azure {
		return map[string]string{"api-key": o.apiKey}
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

func (o *OpenAI) Generate(ctx context.Context, user, system string) (string, error) {
	req := map[string]any{
		"model":    o.model,
		"messages": buildMessages(user, system),
		"stream":   false,
	}
	if o.temperature > 0 {
		req["temperature"] = o.temperature
	}
	if o.maxTokens > 0 {
		req["max_tokens"] = o.maxTokens
	}

	var resp chatResponse
	if err := o.c.postJSON(ctx, "generate", o.endpoint(o.model, "/chat/completions"), o.headers(), req, &resp); err != nil {
		return "", err
	}
	return resp.text()
}

func (o *OpenAI) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	model := o.embedModel
	if model == "" {
		model = o.model
	}
	req := map[string]any{
		"model": model,
		"input": text,
	}
	var resp embeddingResponse
	if err := o.c.postJSON(ctx, "embed", o.endpoint(model, "/embeddings"), o.headers(), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}
