package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryStore is a ChunkStore over an ordered chunk list with a category index.
// It is immutable after construction.
type MemoryStore struct {
	chunks     []*models.Chunk
	ids        []string
	byID       map[string]*models.Chunk
	byCategory map[string][]string
}

// NewMemoryStore indexes chunks by ID and category. Chunks get default validity windows
// applied; duplicate IDs are rejected.
func NewMemoryStore(chunks []*models.Chunk) (*MemoryStore, error) {
	s := &MemoryStore{
		chunks:     make([]*models.Chunk, 0, len(chunks)),
		ids:        make([]string, 0, len(chunks)),
		byID:       make(map[string]*models.Chunk, len(chunks)),
		byCategory: make(map[string][]string),
	}
	for i, c := range chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("chunk at position %d has no id", i)
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %q", c.ID)
		}
		cp := *c
		cp.ApplyDefaults()
		s.chunks = append(s.chunks, &cp)
		s.ids = append(s.ids, cp.ID)
		s.byID[cp.ID] = &cp
		s.byCategory[cp.Category] = append(s.byCategory[cp.Category], cp.ID)
	}
	return s, nil
}

// LoadMemoryStore reads every chunk from st in corpus order.
func LoadMemoryStore(ctx context.Context, st Storage) (*MemoryStore, error) {
	chunks, err := st.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return NewMemoryStore(chunks)
}

func (s *MemoryStore) Get(id string) (*models.Chunk, bool) {
	c, ok := s.byID[id]
	return c, ok
}

func (s *MemoryStore) Chunks() []*models.Chunk {
	return s.chunks
}

func (s *MemoryStore) IDs() []string {
	return s.ids
}

func (s *MemoryStore) Len() int {
	return len(s.chunks)
}

func (s *MemoryStore) IDsForCategories(categories map[string]struct{}) map[string]struct{} {
	if categories == nil {
		return nil
	}
	out := make(map[string]struct{})
	for cat := range categories {
		for _, id := range s.byCategory[cat] {
			out[id] = struct{}{}
		}
	}
	return out
}

// CategoryCounts returns the number of chunks per category.
func (s *MemoryStore) CategoryCounts() map[string]int {
	out := make(map[string]int, len(s.byCategory))
	for cat, ids := range s.byCategory {
		out[cat] = len(ids)
	}
	return out
}
