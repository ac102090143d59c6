// Package llmtest provides an in-memory llm.Service for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperjump/kotae/internal/embedding"
)

// Call records one Generate invocation.
type Call struct {
	User   string
	System string
}

// Fake implements llm.Service. Nil funcs fall back to Reply and hashed embeddings.
type Fake struct {
	GenerateFunc func(ctx context.Context, user, system string) (string, error)
	EmbedFunc    func(ctx context.Context, text string) ([]float32, error)
	Reply        string
	Dimensions   int

	mu         sync.Mutex
	calls      []Call
	embedCalls int
}

var ErrFake = errors.New("llmtest: injected failure")

func (f *Fake) Generate(ctx context.Context, user, system string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{User: user, System: system})
	f.mu.Unlock()
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, user, system)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.Reply, nil
}

func (f *Fake) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.EmbedFunc != nil {
		return f.EmbedFunc(ctx, text)
	}
	dims := f.Dimensions
	if dims <= 0 {
		dims = 32
	}
	return embedding.NewMockEmbedder(dims).Embed(ctx, text)
}

// Calls returns a copy of the recorded Generate calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) EmbedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}
