package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS flat inner-product index. Requires -tags=faiss and cgo.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an empty vector index of the specified type.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// OpenVectorIndex creates an index and loads path into it. A missing file is an error,
// and an index whose size differs from expectedSize (when positive) is rejected.
func OpenVectorIndex(indexType string, dimensions int, path string, expectedSize int) (VectorIndex, error) {
	idx, err := NewVectorIndex(indexType, dimensions)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(path); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load dense index: %w", err)
	}
	if idx.Size() == 0 {
		_ = idx.Close()
		return nil, fmt.Errorf("dense index %s is missing or empty", path)
	}
	if expectedSize > 0 && idx.Size() != expectedSize {
		_ = idx.Close()
		return nil, fmt.Errorf("dense index has %d vectors, chunk store has %d", idx.Size(), expectedSize)
	}
	return idx, nil
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
