package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultVNPTURL            = "https://api.idg.vnpt.vn"
	defaultVNPTEmbeddingModel = "vnptai_hackathon_embedding"
	vnptMaxCompletionTokens   = 1000
)

// VNPT talks to the VNPT AI gateway.
type VNPT struct {
	c           *client
	model       string
	embedModel  string
	maxTokens   int
	temperature float64

	chatAuth  vnptCredentials
	embedAuth vnptCredentials
}

type vnptCredentials struct {
	authorization string
	tokenID       string
	tokenKey      string
}

func (v vnptCredentials) headers() map[string]string {
	return map[string]string{
		"Authorization": v.authorization,
		"Token-id":      v.tokenID,
		"Token-key":     v.tokenKey,
	}
}

func NewVNPT(cfg Config, opts ...Option) (*VNPT, error) {
	if cfg.APIKey == "" || cfg.TokenID == "" || cfg.TokenKey == "" {
		return nil, errors.New("vnpt provider requires api_key, token_id and token_key")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultVNPTURL
	}
	embedModel := cfg.EmbeddingModel
	if embedModel == "" {
		embedModel = defaultVNPTEmbeddingModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = vnptMaxCompletionTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 1.0
	}

	chat := vnptCredentials{authorization: cfg.APIKey, tokenID: cfg.TokenID, tokenKey: cfg.TokenKey}
	embed := chat
	if cfg.EmbeddingAPIKey != "" {
		embed.authorization = cfg.EmbeddingAPIKey
	}
	if cfg.EmbeddingTokenID != "" {
		embed.tokenID = cfg.EmbeddingTokenID
	}
	if cfg.EmbeddingTokenKey != "" {
		embed.tokenKey = cfg.EmbeddingTokenKey
	}

	return &VNPT{
		c:           newClient(ProviderVNPT, base, cfg.Timeout, opts...),
		model:       cfg.Model,
		embedModel:  embedModel,
		maxTokens:   maxTokens,
		temperature: temperature,
		chatAuth:    chat,
		embedAuth:   embed,
	}, nil
}

func (v *VNPT) Generate(ctx context.Context, user, system string) (string, error) {
	req := map[string]any{
		// the gateway expects underscores in the body and dashes in the path
		"model":                 strings.ReplaceAll(v.model, "-", "_"),
		"messages":              buildMessages(user, system),
		"temperature":           v.temperature,
		"top_p":                 1.0,
		"top_k":                 20,
		"n":                     1,
		"max_completion_tokens": v.maxTokens,
	}
	url := v.c.baseURL + "/data-service/v1/chat/completions/" + v.model

	var resp chatResponse
	if err := v.c.postJSON(ctx, "generate", url, v.chatAuth.headers(), req, &resp); err != nil {
		return "", err
	}
	return resp.text()
}

func (v *VNPT) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	req := map[string]any{
		"model":           v.embedModel,
		"input":           text,
		"encoding_format": "float",
	}
	url := v.c.baseURL + "/data-service/vnptai-hackathon-embedding"

	var raw json.RawMessage
	if err := v.c.postJSON(ctx, "embed", url, v.embedAuth.headers(), req, &raw); err != nil {
		return nil, err
	}
	vec, err := decodeVNPTEmbedding(raw)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyResponse
	}
	return vec, nil
}

// decodeVNPTEmbedding accepts either an OpenAI style {"data":[{"embedding":[...]}]} body or a bare vector.
func decodeVNPTEmbedding(raw json.RawMessage) ([]float32, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("decode embed response: %w: %w", ErrMalformedResponse, err)
		}
		return vec, nil
	}
	var resp embeddingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode embed response: %w: %w", ErrMalformedResponse, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("decode embed response: %w: no data", ErrMalformedResponse)
	}
	return resp.Data[0].Embedding, nil
}
