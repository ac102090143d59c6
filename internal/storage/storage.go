// Package storage persists chunks and serves them read-only at query time.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrChunkNotFound is returned when a chunk ID is not in the store.
var ErrChunkNotFound = errors.New("chunk not found")

// Storage defines durable chunk persistence operations.
type Storage interface {
	// ReplaceChunks atomically replaces the stored corpus, keeping slice order.
	ReplaceChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	// ListChunks returns every chunk in corpus order.
	ListChunks(ctx context.Context) ([]*models.Chunk, error)
	ChunkIDsByCategory(ctx context.Context, categories []string) ([]string, error)
	CategoryCounts(ctx context.Context) (map[string]int64, error)
	CountChunks(ctx context.Context) (int64, error)
	Close() error
}

// ChunkStore is the in-memory, read-only view of the corpus used while serving.
// Implementations are safe for concurrent reads without locking.
type ChunkStore interface {
	Get(id string) (*models.Chunk, bool)
	// Chunks returns all chunks in corpus order. Callers must not modify them.
	Chunks() []*models.Chunk
	IDs() []string
	// IDsForCategories resolves a category set to chunk IDs. A nil set returns nil (no filter).
	IDsForCategories(categories map[string]struct{}) map[string]struct{}
	Len() int
}
