// Package fileid derives stable document and chunk IDs from source files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

const prefix = "doc:"

// DocID returns a stable ID for a source file within a category. The path is cleaned
// and slash-separated, so re-ingesting the same file on any machine yields the same ID.
func DocID(category, path string) string {
	normalized := category + "/" + filepath.ToSlash(filepath.Clean(path))
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:8])
}

// ChunkID returns the ID of the index-th chunk of a document.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s-%04d", docID, index)
}

// DocOf returns the document ID a chunk ID was derived from, or "" if id was not made by ChunkID.
func DocOf(chunkID string) string {
	if !strings.HasPrefix(chunkID, prefix) {
		return ""
	}
	i := strings.LastIndexByte(chunkID, '-')
	if i < 0 {
		return ""
	}
	return chunkID[:i]
}
