package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/internal/domain"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/vector"
)

// NativeSearcher pushes category and year filters into the index engines themselves
// and returns the two ranked lists for fusion.
type NativeSearcher interface {
	SearchLists(ctx context.Context, req NativeRequest) (sparse, dense []Ranked, err error)
}

// NativeRequest carries the resolved filters of one retrieval.
type NativeRequest struct {
	Query      string
	Embedding  []float32
	Categories map[string]struct{}
	// Allowed is the resolved chunk ID set for the dense side; nil means all.
	Allowed map[string]struct{}
	Year    *int
	K       int
}

// BleveNative runs bleve filtered queries for the sparse side and the dense index's
// native filtered scan for the dense side.
type BleveNative struct {
	bleve *keyword.BleveIndex
	dense vector.VectorIndex
}

func NewBleveNative(b *keyword.BleveIndex, dense vector.VectorIndex) *BleveNative {
	return &BleveNative{bleve: b, dense: dense}
}

func (n *BleveNative) SearchLists(ctx context.Context, req NativeRequest) ([]Ranked, []Ranked, error) {
	if n.bleve == nil || n.dense == nil {
		return nil, nil, errors.New("native hybrid search not configured")
	}

	var (
		sparse, dense []Ranked
		sparseErr     error
		denseErr      error
		wg            sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, err := n.bleve.SearchFiltered(ctx, req.Query, req.K, keyword.Filter{
			Categories: domain.SortedCategories(req.Categories),
			Year:       req.Year,
		})
		if err != nil {
			sparseErr = fmt.Errorf("bleve filtered search: %w", err)
			return
		}
		sparse = FromSparse(hits)
	}()
	go func() {
		defer wg.Done()
		var (
			hits []*vector.VectorResult
			err  error
		)
		if req.Allowed == nil {
			hits, err = n.dense.Search(ctx, req.Embedding, req.K)
		} else {
			hits, err = n.dense.SearchWithFilter(ctx, req.Embedding, req.Allowed, req.K)
		}
		if err != nil {
			denseErr = fmt.Errorf("dense filtered search: %w", err)
			return
		}
		dense = FromDense(hits)
	}()
	wg.Wait()

	if err := errors.Join(sparseErr, denseErr); err != nil {
		return nil, nil, err
	}
	return sparse, dense, nil
}

// searchNative embeds the query and fuses the native lists. Any error sends the caller
// back to the explicit path.
func (r *Retriever) searchNative(ctx context.Context, req RetrieveRequest, p plan) ([]*FusedResult, error) {
	emb, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sparse, dense, err := r.native.SearchLists(ctx, NativeRequest{
		Query:      req.Query,
		Embedding:  emb,
		Categories: p.categories,
		Allowed:    p.allowed,
		Year:       p.year,
		K:          p.candidates,
	})
	if err != nil {
		return nil, err
	}
	return FuseRRF(sparse, dense, FusionOptions{
		K:            r.config.RRFK,
		SparseWeight: p.cfg.SparseWeight,
		DenseWeight:  p.cfg.DenseWeight,
	}), nil
}
