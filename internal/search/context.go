package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultContextTokens bounds FormatContext when no limit is given.
const DefaultContextTokens = 2000

// FormatContext renders results as numbered "[i] title\ncontent" blocks separated by
// "\n---\n", stopping before the block that would exceed maxTokens*4 characters.
func FormatContext(results []*models.RetrievalResult, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}
	maxChars := maxTokens * 4

	parts := make([]string, 0, len(results))
	total := 0
	for i, r := range results {
		title := r.Title()
		if title == "" {
			title = "Unknown"
		}
		part := fmt.Sprintf("[%d] %s\n%s\n", i+1, title, r.Content)
		n := utf8.RuneCountInString(part)
		if total+n > maxChars {
			break
		}
		parts = append(parts, part)
		total += n
	}
	return strings.Join(parts, "\n---\n")
}
