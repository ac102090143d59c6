package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
)

// LoadChunksJSON reads an ordered JSON array of chunks.
func LoadChunksJSON(path string) ([]*models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk metadata: %w", err)
	}
	var chunks []*models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse chunk metadata %s: %w", path, err)
	}
	return chunks, nil
}

// SaveChunksJSON writes chunks as an indented JSON array, creating parent directories.
func SaveChunksJSON(path string, chunks []*models.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
