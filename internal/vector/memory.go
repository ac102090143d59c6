package vector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force inner product search.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// BuildSubIndex builds a temporary index over the rows of matrix whose IDs are in allowed,
// keeping matrix order. It is the sub-index strategy for filtered search.
func BuildSubIndex(matrix *EmbeddingMatrix, allowed map[string]struct{}) (*MemoryIndex, error) {
	idx, err := NewMemoryIndex(matrix.Dim)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(allowed))
	rows := make([][]float32, 0, len(allowed))
	for i, id := range matrix.IDs {
		if _, ok := allowed[id]; !ok {
			continue
		}
		ids = append(ids, id)
		rows = append(rows, matrix.Rows[i])
	}
	if err := idx.Add(context.Background(), ids, rows); err != nil {
		return nil, err
	}
	return idx, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends normalized copies of vectors with the given IDs.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, Normalize(vectors[i]))
	}
	return nil
}

// Search returns the top-k vectors by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	return m.SearchWithFilter(ctx, query, nil, k)
}

// SearchWithFilter scans only vectors whose ID is in allowed (nil allows all).
// Ties keep insertion order.
func (m *MemoryIndex) SearchWithFilter(ctx context.Context, query []float32, allowed map[string]struct{}, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || (allowed != nil && len(allowed) == 0) {
		return nil, nil
	}
	q := Normalize(query)

	m.mu.RLock()
	defer m.mu.RUnlock()
	scores := make([]*VectorResult, 0, len(m.ids))
	for i, vec := range m.vectors {
		if allowed != nil {
			if _, ok := allowed[m.ids[i]]; !ok {
				continue
			}
		}
		scores = append(scores, &VectorResult{ID: m.ids[i], Score: InnerProduct(q, vec)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k < len(scores) {
		scores = scores[:k]
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return scores, nil
}

// Matrix returns a snapshot of the stored (normalized) rows.
func (m *MemoryIndex) Matrix() *EmbeddingMatrix {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := append([]string(nil), m.ids...)
	rows := append([][]float32(nil), m.vectors...)
	return &EmbeddingMatrix{IDs: ids, Rows: rows, Dim: m.dimensions}
}

// Save persists the index to path in the EmbeddingMatrix layout. Directory is created if needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeMatrix(path, m.dimensions, m.ids, m.vectors)
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	matrix, err := LoadMatrix(path)
	if err != nil {
		return err
	}
	if matrix.Dim != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, matrix.Dim, m.dimensions)
	}
	vectors := make([][]float32, len(matrix.Rows))
	for i, r := range matrix.Rows {
		vectors[i] = Normalize(r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = matrix.IDs
	m.vectors = vectors
	return nil
}

// IDs returns the stored IDs in insertion order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ids...)
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
