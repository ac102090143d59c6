package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Corpus is the read-only serving view of a built index.
type Corpus struct {
	Store  *storage.MemoryStore
	Sparse keyword.SparseIndex
	Dense  vector.VectorIndex
	// Matrix is nil when no matrix file was built.
	Matrix *vector.EmbeddingMatrix
}

// Open loads the corpus written by Builder. Chunks come from the SQLite store, or from
// the chunk JSON when no database exists. The sparse and dense indexes must be aligned
// with the chunk order.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Corpus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	st := cfg.Storage
	store, err := loadStore(ctx, st)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return nil, ErrEmptyCorpus
	}

	sparse, err := keyword.OpenSparseIndex(st.SparseType, st.SparseIndexPath, store.IDs())
	if err != nil {
		return nil, fmt.Errorf("open sparse index: %w", err)
	}
	dense, err := vector.OpenVectorIndex(st.DenseType, cfg.Embedding.Dimensions, st.DenseIndexPath, store.Len())
	if err != nil {
		_ = sparse.Close()
		return nil, err
	}
	c := &Corpus{Store: store, Sparse: sparse, Dense: dense}

	if st.MatrixPath != "" {
		m, err := vector.LoadMatrix(st.MatrixPath)
		switch {
		case err == nil:
			c.Matrix = m
		case errors.Is(err, os.ErrNotExist):
			if cfg.Retrieval.DenseFilter == search.DenseFilterSubIndex {
				logger.Warn("embedding matrix missing; sub-index filtering falls back to native", zap.String("path", st.MatrixPath))
			}
		default:
			_ = c.Close()
			return nil, fmt.Errorf("load embedding matrix: %w", err)
		}
	}
	logger.Info("corpus loaded",
		zap.Int("chunks", store.Len()),
		zap.Int("sparse", sparse.Size()),
		zap.Int("dense", dense.Size()),
		zap.Bool("matrix", c.Matrix != nil),
	)
	return c, nil
}

func loadStore(ctx context.Context, st config.StorageConfig) (*storage.MemoryStore, error) {
	if _, err := os.Stat(st.DatabasePath); err == nil {
		db, err := storage.NewSQLiteStorage(st.DatabasePath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return storage.LoadMemoryStore(ctx, db)
	}
	chunks, err := storage.LoadChunksJSON(st.ChunksPath)
	if err != nil {
		return nil, fmt.Errorf("no chunk database at %s: %w", st.DatabasePath, err)
	}
	return storage.NewMemoryStore(chunks)
}

// RetrieverOptions wires the matrix and, for a bleve sparse index with native_hybrid
// enabled, the native searcher.
func (c *Corpus) RetrieverOptions(cfg *config.Config) []search.RetrieverOption {
	var opts []search.RetrieverOption
	if c.Matrix != nil {
		opts = append(opts, search.WithMatrix(c.Matrix))
	}
	if b, ok := c.Sparse.(*keyword.BleveIndex); ok && cfg.Retrieval.NativeHybrid {
		opts = append(opts, search.WithNativeSearcher(search.NewBleveNative(b, c.Dense)))
	}
	return opts
}

// Close releases the indexes.
func (c *Corpus) Close() error {
	return errors.Join(c.Sparse.Close(), c.Dense.Close())
}
