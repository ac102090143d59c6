package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrEmptyCorpus is returned when Build is given no chunks.
var ErrEmptyCorpus = errors.New("no chunks to index")

// BuildStats summarizes an index build.
type BuildStats struct {
	Chunks     int
	Categories int
	Dimensions int
	Elapsed    time.Duration
}

// Builder writes every artifact the server loads: the chunk JSON and SQLite store, the
// sparse index, the dense index and the raw embedding matrix. All of them share the
// corpus order of the chunks passed to Build.
type Builder struct {
	cfg      *config.Config
	embedder embedding.Embedder
	logger   *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

func WithBuilderLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder that embeds chunks with embedder.
func NewBuilder(cfg *config.Config, embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{cfg: cfg, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build replaces the persisted corpus with chunks.
func (b *Builder) Build(ctx context.Context, chunks []*models.Chunk) (BuildStats, error) {
	start := time.Now()
	if err := validateChunks(chunks); err != nil {
		return BuildStats{}, err
	}
	st := b.cfg.Storage
	for _, p := range []string{st.ChunksPath, st.DatabasePath, st.SparseIndexPath, st.DenseIndexPath, st.MatrixPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return BuildStats{}, fmt.Errorf("create directory for %s: %w", p, err)
		}
	}

	if st.ChunksPath != "" {
		if err := storage.SaveChunksJSON(st.ChunksPath, chunks); err != nil {
			return BuildStats{}, err
		}
	}
	categories, err := b.writeStore(ctx, chunks)
	if err != nil {
		return BuildStats{}, err
	}
	if err := b.writeSparse(ctx, chunks); err != nil {
		return BuildStats{}, err
	}
	ids, vectors, err := b.embed(ctx, chunks)
	if err != nil {
		return BuildStats{}, err
	}
	if err := b.writeDense(ctx, ids, vectors); err != nil {
		return BuildStats{}, err
	}

	stats := BuildStats{
		Chunks:     len(chunks),
		Categories: categories,
		Dimensions: b.embedder.Dimensions(),
		Elapsed:    time.Since(start),
	}
	b.logger.Info("index build complete",
		zap.Int("chunks", stats.Chunks),
		zap.Int("categories", stats.Categories),
		zap.String("sparse_type", st.SparseType),
		zap.String("dense_type", st.DenseType),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

func (b *Builder) writeStore(ctx context.Context, chunks []*models.Chunk) (int, error) {
	db, err := storage.NewSQLiteStorage(b.cfg.Storage.DatabasePath)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	if err := db.ReplaceChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	counts, err := db.CategoryCounts(ctx)
	if err != nil {
		return 0, err
	}
	return len(counts), nil
}

func (b *Builder) writeSparse(ctx context.Context, chunks []*models.Chunk) error {
	st := b.cfg.Storage
	if st.SparseType == string(keyword.IndexTypeBleve) {
		// bleve opens an existing directory instead of replacing it
		if err := os.RemoveAll(st.SparseIndexPath); err != nil {
			return fmt.Errorf("remove old bleve index: %w", err)
		}
	}
	idx, err := keyword.BuildSparseIndex(ctx, st.SparseType, st.SparseIndexPath, chunks, keyword.BuildOptions{
		Params:    b.cfg.BM25Params(),
		Compounds: b.cfg.Retrieval.Compounds,
	})
	if err != nil {
		return fmt.Errorf("build sparse index: %w", err)
	}
	return idx.Close()
}

// embed embeds chunk texts in batches and checks the configured dimensions.
func (b *Builder) embed(ctx context.Context, chunks []*models.Chunk) ([]string, [][]float32, error) {
	batch := b.cfg.Ingest.EmbedBatchSize
	if batch <= 0 {
		batch = 32
	}
	dims := b.embedder.Dimensions()
	if want := b.cfg.Embedding.Dimensions; want > 0 && dims != want {
		return nil, nil, fmt.Errorf("%w: embedder has %d, embedding.dimensions is %d", vector.ErrDimensionMismatch, dims, want)
	}
	ids := make([]string, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	for lo := 0; lo < len(chunks); lo += batch {
		hi := min(lo+batch, len(chunks))
		texts := make([]string, hi-lo)
		for i, c := range chunks[lo:hi] {
			texts[i] = embeddingText(c)
		}
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, nil, fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
		}
		if len(vecs) != len(texts) {
			return nil, nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", lo, hi-1, len(vecs))
		}
		vectors = append(vectors, vecs...)
		b.logger.Debug("embedded chunks", zap.Int("done", hi), zap.Int("total", len(chunks)))
	}
	return ids, vectors, nil
}

func (b *Builder) writeDense(ctx context.Context, ids []string, vectors [][]float32) error {
	st := b.cfg.Storage
	dims := b.embedder.Dimensions()
	idx, err := vector.NewVectorIndex(st.DenseType, dims)
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := idx.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("build dense index: %w", err)
	}
	if err := idx.Save(st.DenseIndexPath); err != nil {
		return fmt.Errorf("save dense index: %w", err)
	}
	if st.MatrixPath == "" {
		return nil
	}
	matrix, err := vector.NewEmbeddingMatrix(ids, vectors, dims)
	if err != nil {
		return err
	}
	return matrix.Save(st.MatrixPath)
}

// embeddingText prefixes the title so short chunks keep their document context.
func embeddingText(c *models.Chunk) string {
	if c.Title == "" {
		return c.Text
	}
	return c.Title + "\n" + c.Text
}

func validateChunks(chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyCorpus
	}
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("chunk %d is null", i)
		}
		if c.ID == "" {
			return fmt.Errorf("chunk %d has no id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate chunk id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Text == "" {
			return fmt.Errorf("chunk %q has no text", c.ID)
		}
		c.ApplyDefaults()
		if c.ValidFrom > c.ExpireAt {
			return fmt.Errorf("chunk %q: valid_from %d is after expire_at %d", c.ID, c.ValidFrom, c.ExpireAt)
		}
	}
	return nil
}
