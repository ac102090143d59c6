package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/domain"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/temporal"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Dense filtering strategies.
const (
	DenseFilterNative   = "native"
	DenseFilterSubIndex = "subindex"
)

// RetrieverConfig tunes candidate pool sizes and fusion.
type RetrieverConfig struct {
	// CandidateMultiplier and MinCandidates size each list: max(TopK*CandidateMultiplier, MinCandidates).
	CandidateMultiplier int
	MinCandidates       int
	RRFK                float64
	MinRelevance        float64
	// DenseFilter is DenseFilterNative (skip disallowed rows while scanning) or
	// DenseFilterSubIndex (search a temporary index over the allowed matrix rows).
	DenseFilter string
	// NativeHybrid routes retrieval through the NativeSearcher when one is set.
	NativeHybrid bool
	// ForceTemporal applies the temporal boost to every domain when a year is known.
	ForceTemporal bool
}

// ApplyDefaults fills zero values.
func (c *RetrieverConfig) ApplyDefaults() {
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = 4
	}
	if c.MinCandidates <= 0 {
		c.MinCandidates = 20
	}
	if c.RRFK <= 0 {
		c.RRFK = DefaultRRFK
	}
	if c.DenseFilter == "" {
		c.DenseFilter = DenseFilterNative
	}
}

// RetrieveRequest is one retrieval query. Zero TopK uses the domain's configured value.
type RetrieveRequest struct {
	Query       string
	Domain      models.Domain
	TopK        int
	KeyEntities []string
	// Year drops chunks whose validity window excludes it, in every domain.
	Year *int
	// ForceTemporal applies the temporal boost even when the domain disables it.
	ForceTemporal bool
}

// Retriever runs hybrid sparse+dense retrieval over a read-only corpus.
type Retriever struct {
	store    storage.ChunkStore
	sparse   keyword.SparseIndex
	dense    vector.VectorIndex
	embedder embedding.Embedder
	mapper   *domain.Mapper
	ranker   *ranking.Ranker
	matrix   *vector.EmbeddingMatrix
	native   NativeSearcher
	config   RetrieverConfig
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

func WithLogger(logger *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRanker(ranker *ranking.Ranker) RetrieverOption {
	return func(r *Retriever) {
		if ranker != nil {
			r.ranker = ranker
		}
	}
}

// WithMatrix supplies the raw embedding matrix used by the sub-index dense strategy.
func WithMatrix(m *vector.EmbeddingMatrix) RetrieverOption {
	return func(r *Retriever) {
		r.matrix = m
	}
}

func WithNativeSearcher(n NativeSearcher) RetrieverOption {
	return func(r *Retriever) {
		r.native = n
	}
}

// NewRetriever creates a retriever with the given dependencies.
func NewRetriever(
	store storage.ChunkStore,
	sparse keyword.SparseIndex,
	dense vector.VectorIndex,
	embedder embedding.Embedder,
	mapper *domain.Mapper,
	cfg RetrieverConfig,
	opts ...RetrieverOption,
) *Retriever {
	cfg.ApplyDefaults()
	r := &Retriever{
		store:    store,
		sparse:   sparse,
		dense:    dense,
		embedder: embedder,
		mapper:   mapper,
		ranker:   ranking.NewRanker(nil),
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to TopK results by descending score. It never fails: degraded
// retrieval yields fewer or no results.
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) []*models.RetrievalResult {
	return r.RetrieveDetailed(ctx, req).Results
}

// plan is the per-request resolution of domain parameters and filters.
type plan struct {
	cfg        models.RetrievalConfig
	topK       int
	candidates int
	categories map[string]struct{}
	allowed    map[string]struct{}
	year       *int
	boost      bool
}

// RetrieveDetailed is Retrieve with the resolved filter and timing attached.
func (r *Retriever) RetrieveDetailed(ctx context.Context, req RetrieveRequest) *models.RetrieveResponse {
	start := time.Now()
	p := r.plan(req)
	resp := &models.RetrieveResponse{
		Query:      req.Query,
		Domain:     req.Domain,
		Year:       p.year,
		Categories: domain.SortedCategories(p.categories),
		Results:    []*models.RetrievalResult{},
	}
	defer func() { resp.QueryTime = time.Since(start).Milliseconds() }()

	if p.allowed != nil && len(p.allowed) == 0 {
		r.logger.Debug("no chunks pass the filters", zap.String("domain", string(req.Domain)))
		return resp
	}

	var fused []*FusedResult
	if r.config.NativeHybrid && r.native != nil {
		var err error
		fused, err = r.searchNative(ctx, req, p)
		if err != nil {
			r.logger.Warn("native hybrid search failed, using explicit path", zap.Error(err))
		} else {
			resp.Results = r.finish(fused, p)
			return resp
		}
	}

	fused, ok := r.searchExplicit(ctx, req.Query, p)
	if !ok {
		return resp
	}
	resp.Results = r.finish(fused, p)
	return resp
}

func (r *Retriever) plan(req RetrieveRequest) plan {
	cfg := r.mapper.RetrievalConfigFor(req.Domain)
	p := plan{cfg: cfg, topK: req.TopK}
	if p.topK <= 0 {
		p.topK = cfg.TopK
	}
	p.candidates = max(p.topK*r.config.CandidateMultiplier, r.config.MinCandidates)

	cats, branch := r.mapper.Resolve(req.Domain, req.KeyEntities)
	p.categories = cats
	p.allowed = r.store.IDsForCategories(cats)
	if p.allowed != nil && len(p.allowed) == 0 {
		// categories absent from this corpus: search everything rather than nothing
		r.logger.Warn("category filter matches no chunks, searching unfiltered",
			zap.String("branch", string(branch)),
			zap.Strings("categories", domain.SortedCategories(cats)),
		)
		p.categories = nil
		p.allowed = nil
	}

	if req.Year != nil {
		p.year = req.Year
		p.boost = cfg.UseTemporalFilter || req.ForceTemporal || r.config.ForceTemporal
		p.allowed = r.temporalSubset(p.allowed, req.Year)
	}
	return p
}

// temporalSubset narrows allowed (nil = all chunks) to chunks valid in year.
func (r *Retriever) temporalSubset(allowed map[string]struct{}, year *int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range temporal.FilterChunks(r.store.Chunks(), year) {
		if allowed != nil {
			if _, ok := allowed[c.ID]; !ok {
				continue
			}
		}
		out[c.ID] = struct{}{}
	}
	return out
}

func (r *Retriever) searchExplicit(ctx context.Context, query string, p plan) ([]*FusedResult, bool) {
	var (
		sparseResults []*keyword.SparseResult
		denseResults  []*vector.VectorResult
		embedErr      error
		errChan       = make(chan error, 2)
		wg            sync.WaitGroup
	)

	if p.cfg.SparseWeight > 0 && r.sparse != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := r.sparse.Search(ctx, query, p.candidates, keyword.IDSet(p.allowed))
			if err != nil {
				errChan <- fmt.Errorf("sparse search failed: %w", err)
				return
			}
			sparseResults = results
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		queryEmbedding, err := r.embedder.Embed(ctx, query)
		if err != nil {
			embedErr = err
			return
		}
		if p.cfg.DenseWeight <= 0 || r.dense == nil {
			return
		}
		results, err := r.searchDense(ctx, queryEmbedding, p)
		if err != nil {
			errChan <- fmt.Errorf("dense search failed: %w", err)
			return
		}
		denseResults = results
	}()

	wg.Wait()
	close(errChan)

	if embedErr != nil {
		r.logger.Warn("query embedding failed, returning no results", zap.Error(embedErr))
		return nil, false
	}
	for err := range errChan {
		r.logger.Warn("retrieval degraded", zap.Error(err))
	}

	return FuseRRF(FromSparse(sparseResults), FromDense(denseResults), FusionOptions{
		K:            r.config.RRFK,
		SparseWeight: p.cfg.SparseWeight,
		DenseWeight:  p.cfg.DenseWeight,
	}), true
}

func (r *Retriever) searchDense(ctx context.Context, q []float32, p plan) ([]*vector.VectorResult, error) {
	if p.allowed == nil {
		return r.dense.Search(ctx, q, p.candidates)
	}
	if r.config.DenseFilter == DenseFilterSubIndex && r.matrix != nil {
		sub, err := vector.BuildSubIndex(r.matrix, p.allowed)
		if err != nil {
			return nil, err
		}
		defer sub.Close()
		return sub.Search(ctx, q, p.candidates)
	}
	return r.dense.SearchWithFilter(ctx, q, p.allowed, p.candidates)
}

// finish applies ranking multipliers, re-sorts, cuts to TopK and MinRelevance, and
// materializes results from the chunk store.
func (r *Retriever) finish(fused []*FusedResult, p plan) []*models.RetrievalResult {
	if p.year != nil {
		for _, f := range fused {
			c, ok := r.store.Get(f.ID)
			if !ok {
				continue
			}
			f.Score = r.ranker.Adjust(&ranking.ScoringContext{
				Chunk:           c,
				Year:            p.year,
				TemporalBoost:   p.cfg.TemporalBoost,
				TemporalEnabled: p.boost,
			}, f.Score)
		}
		SortFused(fused)
	}

	out := make([]*models.RetrievalResult, 0, min(len(fused), p.topK))
	for _, f := range fused {
		if len(out) >= p.topK {
			break
		}
		if r.config.MinRelevance > 0 && f.Score < r.config.MinRelevance {
			continue
		}
		c, ok := r.store.Get(f.ID)
		if !ok {
			r.logger.Warn("index returned unknown chunk", zap.String("chunk_id", f.ID))
			continue
		}
		if p.year != nil && !temporal.ChunkIsValid(c, p.year) {
			continue
		}
		out = append(out, &models.RetrievalResult{
			ChunkID:  c.ID,
			Content:  c.Text,
			Score:    f.Score,
			Source:   f.Source(),
			Metadata: c.Metadata(),
		})
	}
	return out
}
