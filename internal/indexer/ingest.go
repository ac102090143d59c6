package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// ErrNoText is returned for a file that yields no text after extraction.
var ErrNoText = errors.New("no text extracted")

// Source is the metadata stamped on every chunk of one ingest run.
type Source struct {
	Category  string
	ValidFrom int
	ExpireAt  int
}

// Validate checks that a category is set and the validity window is ordered.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Category) == "" {
		return errors.New("category is required")
	}
	c := models.Chunk{ValidFrom: s.ValidFrom, ExpireAt: s.ExpireAt}
	if from, to := c.Window(); from > to {
		return fmt.Errorf("valid_from %d is after expire_at %d", from, to)
	}
	return nil
}

// IngestResult summarizes an ingest run.
type IngestResult struct {
	Chunks []*models.Chunk
	Files  int
	// Failed maps a relative path to the reason it was skipped.
	Failed map[string]string
}

// Ingester extracts, normalizes and chunks source documents.
type Ingester struct {
	extractor  *extract.Extractor
	chunker    *Chunker
	extensions []string
	logger     *zap.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for per-file progress.
func WithLogger(l *zap.Logger) IngesterOption {
	return func(in *Ingester) { in.logger = l }
}

// NewIngester creates an ingester from the ingest config.
func NewIngester(cfg config.IngestConfig, opts ...IngesterOption) *Ingester {
	in := &Ingester{
		extractor:  extract.NewExtractor(),
		chunker:    NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extensions: cfg.Extensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest chunks root, which is a file or a directory walked recursively. Files whose
// extension is not configured are ignored; files that fail extraction are recorded in
// Failed and skipped. Chunks are ordered by relative path, then position.
func (in *Ingester) Ingest(ctx context.Context, root string, src Source) (*IngestResult, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var files []string
	base := filepath.Dir(absRoot)
	if info.IsDir() {
		base = absRoot
		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != absRoot && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || !extensionAllowed(filepath.Ext(path), in.extensions) {
				return nil
			}
			// Resolve symlinks so only regular files are read
			finfo, statErr := os.Stat(path)
			if statErr != nil || !finfo.Mode().IsRegular() {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	} else {
		files = []string{absRoot}
	}
	sort.Strings(files)

	res := &IngestResult{Failed: map[string]string{}}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		chunks, err := in.IngestFile(path, rel, src)
		if err != nil {
			in.logger.Warn("ingest skipped file", zap.String("path", rel), zap.Error(err))
			res.Failed[rel] = err.Error()
			continue
		}
		in.logger.Debug("ingest file chunked", zap.String("path", rel), zap.Int("chunks", len(chunks)))
		res.Chunks = append(res.Chunks, chunks...)
		res.Files++
	}
	return res, nil
}

// IngestFile chunks one file. rel is the path recorded as the chunks' source file and
// hashed into their IDs.
func (in *Ingester) IngestFile(path, rel string, src Source) ([]*models.Chunk, error) {
	doc, err := in.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	windows := in.chunker.Split(Preprocess(doc.Text))
	if len(windows) == 0 {
		return nil, ErrNoText
	}
	title := Preprocess(doc.Title)
	if title == "" {
		title = titleFromFilename(rel)
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	docID := fileid.DocID(src.Category, rel)
	chunks := make([]*models.Chunk, len(windows))
	for i, text := range windows {
		c := &models.Chunk{
			ID:         fileid.ChunkID(docID, i),
			Text:       text,
			Category:   src.Category,
			Title:      title,
			SourceFile: rel,
			ValidFrom:  src.ValidFrom,
			ExpireAt:   src.ExpireAt,
		}
		c.ApplyDefaults()
		chunks[i] = c
	}
	return chunks, nil
}

// Merge replaces every document of existing that reappears in added and appends the
// rest of added, keeping existing order. Chunks not made by ChunkID are matched by ID.
func Merge(existing, added []*models.Chunk) []*models.Chunk {
	replaced := make(map[string]struct{}, len(added))
	for _, c := range added {
		if doc := fileid.DocOf(c.ID); doc != "" {
			replaced[doc] = struct{}{}
		}
		replaced[c.ID] = struct{}{}
	}
	out := make([]*models.Chunk, 0, len(existing)+len(added))
	for _, c := range existing {
		if _, ok := replaced[c.ID]; ok {
			continue
		}
		if _, ok := replaced[fileid.DocOf(c.ID)]; ok {
			continue
		}
		out = append(out, c)
	}
	return append(out, added...)
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return extract.Supported(ext)
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
