// Package keyword provides sparse (BM25) keyword indexing and search over chunks.
package keyword

import (
	"context"
	"errors"
)

// IDSet is a set of chunk IDs used to restrict a search to a subset of the index.
type IDSet map[string]struct{}

// NewIDSet builds an IDSet from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set. A nil set contains everything.
func (s IDSet) Contains(id string) bool {
	if s == nil {
		return true
	}
	_, ok := s[id]
	return ok
}

// SparseIndex defines keyword search over an immutable chunk corpus.
type SparseIndex interface {
	// Search returns up to topK hits sorted by descending score. When restrictTo is
	// non-nil only chunks in the set are considered.
	Search(ctx context.Context, query string, topK int, restrictTo IDSet) ([]*SparseResult, error)
	// Size returns the number of indexed chunks.
	Size() int
	Close() error
}

// SparseResult is a single keyword search hit.
type SparseResult struct {
	ID    string
	Score float64
}

// ErrIndexMismatch is returned when a persisted index does not belong to the chunk list it is loaded with.
var ErrIndexMismatch = errors.New("sparse index does not match chunk list")
