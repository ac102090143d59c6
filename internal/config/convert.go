package config

import (
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/resilience"
	"github.com/hyperjump/kotae/internal/router"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/worker"
)

func (c *Config) LLMOptions() llm.Config {
	l := c.LLM
	return llm.Config{
		Provider:          l.Provider,
		BaseURL:           l.BaseURL,
		APIKey:            l.APIKey,
		Model:             l.Model,
		EmbeddingModel:    l.EmbeddingModel,
		APIVersion:        l.APIVersion,
		TokenID:           l.TokenID,
		TokenKey:          l.TokenKey,
		EmbeddingAPIKey:   l.EmbeddingAPIKey,
		EmbeddingTokenID:  l.EmbeddingTokenID,
		EmbeddingTokenKey: l.EmbeddingTokenKey,
		Temperature:       l.Temperature,
		MaxTokens:         l.MaxTokens,
		Timeout:           l.Timeout,
		MockDimensions:    c.Embedding.Dimensions,
	}
}

func (c *Config) ResilienceOptions() resilience.Config {
	r := c.LLM.Retry
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = r.MaxAttempts
	out.RetryInitialBackoff = r.InitialBackoff
	out.RetryMaxBackoff = r.MaxBackoff
	out.RetryMultiplier = r.Multiplier
	out.JitterFraction = r.Jitter
	if r.BreakerEnabled != nil {
		out.BreakerEnabled = *r.BreakerEnabled
	}
	if r.BreakerOpenAfter > 0 {
		out.BreakerOpenTimeout = r.BreakerOpenAfter
	}
	return out
}

func (c *Config) BM25Params() keyword.BM25Params {
	return keyword.BM25Params{K1: c.Retrieval.BM25.K1, B: c.Retrieval.BM25.B, Epsilon: c.Retrieval.BM25.Epsilon}
}

func (c *Config) RetrieverOptions() search.RetrieverConfig {
	r := c.Retrieval
	return search.RetrieverConfig{
		CandidateMultiplier: r.CandidateMultiplier,
		MinCandidates:       r.MinCandidates,
		RRFK:                r.RRFK,
		MinRelevance:        r.MinRelevance,
		DenseFilter:         r.DenseFilter,
		NativeHybrid:        r.NativeHybrid,
		ForceTemporal:       r.ForceTemporal,
	}
}

func (c *Config) RouterOptions() router.Config {
	return router.Config{
		Timeout:       c.Router.Timeout,
		RegexFallback: c.Router.RegexFallbackOrDefault(),
		ContextTokens: c.Retrieval.ContextTokens,
		ForceTemporal: c.Retrieval.ForceTemporal,
	}
}

// WorkerOptions resolves the pool size for the configured provider.
func (c *Config) WorkerOptions() worker.Config {
	return worker.Config{
		Size:              worker.SizeFor(c.LLM.Provider, c.Workers.Size, c.Workers.Max),
		Max:               c.Workers.Max,
		RequestsPerSecond: c.Workers.RequestsPerSecond,
		QuestionTimeout:   c.Workers.QuestionTimeout,
	}
}
