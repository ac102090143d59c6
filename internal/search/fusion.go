// Package search provides hybrid sparse+dense retrieval and reciprocal rank fusion.
package search

import (
	"sort"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// DefaultRRFK is the reciprocal rank fusion smoothing constant.
const DefaultRRFK = 60

// Ranked is one entry of a ranked list, sorted by descending Score.
type Ranked struct {
	ID    string
	Score float64
}

// FusionOptions configure FuseRRF.
type FusionOptions struct {
	K            float64
	SparseWeight float64
	DenseWeight  float64
	// TopK caps the fused list; zero keeps everything.
	TopK int
	// MinRelevance drops fused results scoring below it, after the TopK cut.
	MinRelevance float64
}

// FusedResult is a chunk with its fused score and per-list provenance.
// A rank of 0 means the chunk was absent from that list.
type FusedResult struct {
	ID          string
	Score       float64
	SparseRank  int
	DenseRank   int
	SparseScore float64
	DenseScore  float64
	order       int
}

// Source reports which lists contributed to r.
func (r *FusedResult) Source() models.Source {
	switch {
	case r.SparseRank > 0 && r.DenseRank > 0:
		return models.SourceHybrid
	case r.DenseRank > 0:
		return models.SourceDense
	default:
		return models.SourceSparse
	}
}

// FromSparse converts sparse index hits to a ranked list.
func FromSparse(results []*keyword.SparseResult) []Ranked {
	out := make([]Ranked, len(results))
	for i, r := range results {
		out[i] = Ranked{ID: r.ID, Score: r.Score}
	}
	return out
}

// FromDense converts dense index hits to a ranked list.
func FromDense(results []*vector.VectorResult) []Ranked {
	out := make([]Ranked, len(results))
	for i, r := range results {
		out[i] = Ranked{ID: r.ID, Score: r.Score}
	}
	return out
}

// FuseRRF merges two ranked lists with weighted reciprocal rank fusion. Each list contributes
// weight/(K+rank) with 1-indexed ranks. Equal scores keep first-seen order, sparse list first.
func FuseRRF(sparse, dense []Ranked, opts FusionOptions) []*FusedResult {
	k := opts.K
	if k <= 0 {
		k = DefaultRRFK
	}
	byID := make(map[string]*FusedResult, len(sparse)+len(dense))
	results := make([]*FusedResult, 0, len(sparse)+len(dense))
	get := func(id string) *FusedResult {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &FusedResult{ID: id, order: len(results)}
		byID[id] = r
		results = append(results, r)
		return r
	}

	for i, item := range sparse {
		r := get(item.ID)
		if r.SparseRank > 0 {
			continue
		}
		r.SparseRank = i + 1
		r.SparseScore = item.Score
		r.Score += opts.SparseWeight / (k + float64(i+1))
	}
	for i, item := range dense {
		r := get(item.ID)
		if r.DenseRank > 0 {
			continue
		}
		r.DenseRank = i + 1
		r.DenseScore = item.Score
		r.Score += opts.DenseWeight / (k + float64(i+1))
	}

	SortFused(results)
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	if opts.MinRelevance > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= opts.MinRelevance {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	return results
}

// SortFused orders results by descending score, ties by first insertion.
func SortFused(results []*FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].order < results[j].order
	})
}
