// Package vector provides dense vector indexes over chunk embeddings.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a query or inserted vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// VectorIndex defines vector storage and similarity search. Implementations L2-normalize
// vectors on insert and on query, so scores are cosine similarities.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// SearchWithFilter ranks only vectors whose ID is in allowed. A nil set allows everything;
	// an empty set returns no results.
	SearchWithFilter(ctx context.Context, query []float32, allowed map[string]struct{}, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit (ID is the chunk ID).
type VectorResult struct {
	ID    string
	Score float64
}
