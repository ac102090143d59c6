package embedding

import (
	"context"
	"fmt"
)

// SourceEmbedder adapts a remote Source to Embedder. Dimensions is fixed by configuration
// and every returned vector is checked against it.
type SourceEmbedder struct {
	source     Source
	dimensions int
}

// NewSourceEmbedder wraps source. dimensions must be positive.
func NewSourceEmbedder(source Source, dimensions int) (*SourceEmbedder, error) {
	if source == nil {
		return nil, fmt.Errorf("embedding source is nil")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &SourceEmbedder{source: source, dimensions: dimensions}, nil
}

// Embed calls the source and validates the vector length.
func (e *SourceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.source.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, configured %d", len(vec), e.dimensions)
	}
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *SourceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the configured embedding dimension.
func (e *SourceEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the source owns its resources.
func (e *SourceEmbedder) Close() error {
	return nil
}
