// Package indexer turns source documents into chunks and builds the persisted indexes
// the retriever serves from.
package indexer

import (
	"strings"
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words). An overlap
// that is not smaller than the size is clamped so every window advances.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split returns the windows of text. A window that would end mid-sentence is cut back
// to the last sentence end in its second half, so chunks tend to hold whole sentences.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var out []string
	for start := 0; start < len(words); {
		end := start + c.chunkSize
		if end >= len(words) {
			end = len(words)
		} else {
			end = c.sentenceEnd(words, start, end)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// sentenceEnd returns the exclusive end of the window [start, end), moved back to just
// after the last word that closes a sentence, if one lies in the window's second half.
func (c *Chunker) sentenceEnd(words []string, start, end int) int {
	for i := end - 1; i >= start+c.chunkSize/2; i-- {
		if endsSentence(words[i]) {
			return i + 1
		}
	}
	return end
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]»”’`)
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "?") ||
		strings.HasSuffix(word, "!") || strings.HasSuffix(word, ";") ||
		strings.HasSuffix(word, "…")
}
