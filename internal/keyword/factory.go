package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/kotae/internal/models"
)

// IndexType selects the sparse index implementation.
type IndexType string

const (
	// IndexTypeBM25 is the in-memory Okapi BM25 index persisted as a gob blob.
	IndexTypeBM25 IndexType = "bm25"
	// IndexTypeBleve is a Bleve index directory; it also serves filtered native queries.
	IndexTypeBleve IndexType = "bleve"
)

// BuildOptions configure sparse index construction.
type BuildOptions struct {
	Params    BM25Params
	Compounds []string
}

// BuildSparseIndex builds an index of the given type over chunks and persists it at path.
func BuildSparseIndex(ctx context.Context, indexType, path string, chunks []*models.Chunk, opts BuildOptions) (SparseIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeBM25, "":
		var seg *DictionarySegmenter
		if len(opts.Compounds) > 0 {
			seg = NewDictionarySegmenter(opts.Compounds)
		}
		idx, err := BuildBM25(chunks, opts.Params, seg)
		if err != nil {
			return nil, err
		}
		if path != "" {
			if err := idx.Save(path); err != nil {
				return nil, err
			}
		}
		return idx, nil
	case IndexTypeBleve:
		idx, err := NewBleveIndex(path)
		if err != nil {
			return nil, err
		}
		if err := idx.IndexChunks(ctx, chunks); err != nil {
			_ = idx.Close()
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown sparse index type: %s (supported: bm25, bleve)", indexType)
	}
}

// OpenSparseIndex loads a persisted index. For bm25, chunkIDs (when non-nil) must match
// the order the index was built with.
func OpenSparseIndex(indexType, path string, chunkIDs []string) (SparseIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeBM25, "":
		idx, err := LoadBM25(path)
		if err != nil {
			return nil, err
		}
		if chunkIDs != nil {
			if err := idx.CheckAlignment(chunkIDs); err != nil {
				return nil, err
			}
		}
		return idx, nil
	case IndexTypeBleve:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("bleve index not found: %w", err)
		}
		return NewBleveIndex(path)
	default:
		return nil, fmt.Errorf("unknown sparse index type: %s (supported: bm25, bleve)", indexType)
	}
}
