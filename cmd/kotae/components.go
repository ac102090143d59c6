package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/domain"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/prompts"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/resilience"
	"github.com/hyperjump/kotae/internal/router"
	"github.com/hyperjump/kotae/internal/safety"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/worker"
)

// Components holds initialized services.
type Components struct {
	LLM      llm.Service
	Embedder embedding.Embedder
	// Firewall is nil only when safety.enabled is false.
	Corpus    *indexer.Corpus
	Retriever *search.Retriever
	Firewall  *safety.Firewall
	Agent     *router.Agent
	Pool      *worker.Pool
	Metrics   *metrics.Metrics
}

func (c *Components) Close() {
	if c.Corpus != nil {
		_ = c.Corpus.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// ServerComponents maps the services to the HTTP layer, leaving a disabled firewall as a
// nil interface.
func (c *Components) ServerComponents() server.Components {
	sc := server.Components{
		Agent:    c.Agent,
		Pool:     c.Pool,
		Embedder: c.Embedder,
		Metrics:  c.Metrics,
	}
	if c.Retriever != nil {
		sc.Retriever = c.Retriever
	}
	if c.Firewall != nil {
		sc.Firewall = c.Firewall
	}
	if c.Corpus != nil {
		sc.Store = c.Corpus.Store
		sc.Dense = c.Corpus.Dense
	}
	return sc
}

// newLLM builds the language model client behind the retry/breaker executor.
func newLLM(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (llm.Service, error) {
	exec := resilience.NewExecutor(cfg.ResilienceOptions(), resilience.WithLogger(logger))
	opts := []llm.Option{llm.WithLogger(logger), llm.WithExecutor(exec)}
	if m != nil {
		opts = append(opts, llm.WithObserver(m))
	}
	svc, err := llm.New(cfg.LLMOptions(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	}
	return svc, nil
}

// newEmbedder builds the configured embedder. The "llm" provider embeds through svc.
func newEmbedder(cfg *config.Config, svc llm.Service) (embedding.Embedder, error) {
	e := cfg.Embedding
	emb, err := embedding.New(embedding.Options{
		Provider:   e.Provider,
		Dimensions: e.Dimensions,
		ONNX: embedding.ONNXConfig{
			ModelPath:   e.ModelPath,
			Dimensions:  e.Dimensions,
			MaxTokens:   e.MaxTokens,
			LibraryPath: e.LibraryPath,
		},
		Source: svc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return emb, nil
}

// loadFirewall returns nil without error only when safety.enabled is false.
// A missing bank is a configuration error.
func loadFirewall(cfg *config.Config, emb embedding.Embedder, logger *zap.Logger) (*safety.Firewall, error) {
	if !cfg.Safety.EnabledOrDefault() {
		logger.Warn("safety firewall disabled by config")
		return nil, nil
	}
	bank, err := safety.LoadBank(cfg.Storage.SafetyTextsPath, cfg.Storage.SafetyMatrixPath)
	if errors.Is(err, safety.ErrBankNotFound) {
		return nil, fmt.Errorf("%w at %s: run kotae safety-bank or set safety.enabled: false",
			err, cfg.Storage.SafetyTextsPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load safety bank: %w", err)
	}
	if bank.Dimensions() != emb.Dimensions() {
		return nil, fmt.Errorf("safety bank has %d dimensions, embedder has %d; rebuild the bank",
			bank.Dimensions(), emb.Dimensions())
	}
	logger.Info("safety bank loaded", zap.Int("size", bank.Len()), zap.Float64("threshold", cfg.Safety.Threshold))
	return safety.NewFirewall(bank, safety.WithThreshold(cfg.Safety.Threshold), safety.WithLogger(logger)), nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Components{}
	if cfg.Metrics.EnabledOrDefault() {
		c.Metrics = metrics.New()
	}

	svc, err := newLLM(cfg, logger, c.Metrics)
	if err != nil {
		return nil, err
	}
	c.LLM = svc
	if c.Embedder, err = newEmbedder(cfg, svc); err != nil {
		return nil, err
	}

	corpus, err := indexer.Open(ctx, cfg, logger)
	switch {
	case err == nil:
		c.Corpus = corpus
		mapper := domain.NewMapper(domain.WithLogger(logger), domain.WithConfigOverrides(cfg.Retrieval.Domains))
		opts := append(corpus.RetrieverOptions(cfg),
			search.WithLogger(logger),
			search.WithRanker(ranking.NewRanker(&cfg.Retrieval.Ranking)),
		)
		c.Retriever = search.NewRetriever(corpus.Store, corpus.Sparse, corpus.Dense, c.Embedder, mapper, cfg.RetrieverOptions(), opts...)
		logger.Info("corpus loaded",
			zap.Int("chunks", corpus.Store.Len()),
			zap.String("sparse", cfg.Storage.SparseType),
			zap.String("dense", cfg.Storage.DenseType))
	case errors.Is(err, indexer.ErrEmptyCorpus), errors.Is(err, os.ErrNotExist):
		c.Close()
		return nil, fmt.Errorf("corpus not built (run kotae ingest and kotae index): %w", err)
	default:
		c.Close()
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}

	c.Firewall, err = loadFirewall(cfg, c.Embedder, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	reg := prompts.NewRegistry()
	if cfg.Prompts.Path != "" {
		if err := reg.LoadFile(cfg.Prompts.Path); err != nil {
			c.Close()
			return nil, err
		}
	}

	rc := router.Components{
		LLM:      svc,
		Prompts:  reg,
		Embedder: c.Embedder,
		Selector: safety.NewSelector(svc, reg, safety.WithSelectorLogger(logger), safety.WithKeywords(cfg.Safety.Keywords)),
	}
	if c.Firewall != nil {
		rc.Firewall = c.Firewall
	}
	if c.Retriever != nil {
		rc.Retriever = c.Retriever
	}
	agentOpts := []router.Option{router.WithLogger(logger)}
	poolOpts := []worker.Option{worker.WithLogger(logger)}
	if c.Metrics != nil {
		agentOpts = append(agentOpts, router.WithObserver(c.Metrics))
		poolOpts = append(poolOpts, worker.WithObserver(c.Metrics))
	}
	c.Agent, err = router.New(rc, cfg.RouterOptions(), agentOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Pool = worker.NewPool(c.Agent, cfg.WorkerOptions(), poolOpts...)
	return c, nil
}
