package llm

import (
	"context"

	"github.com/hyperjump/kotae/internal/embedding"
)

const (
	defaultMockReply      = `{"answer": "A"}`
	defaultMockDimensions = 384
)

// Mock is a deterministic offline provider: a fixed reply and hashed bag-of-words embeddings.
type Mock struct {
	reply    string
	embedder *embedding.MockEmbedder
}

func NewMock(cfg Config) *Mock {
	reply := cfg.MockReply
	if reply == "" {
		reply = defaultMockReply
	}
	dims := cfg.MockDimensions
	if dims <= 0 {
		dims = defaultMockDimensions
	}
	return &Mock{reply: reply, embedder: embedding.NewMockEmbedder(dims)}
}

func (m *Mock) Generate(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply, nil
}

func (m *Mock) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return m.embedder.Embed(ctx, text)
}
