// Package temporal extracts query years and checks chunk validity windows.
package temporal

import (
	"regexp"
	"strconv"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	MinYear = 1900
	MaxYear = 2100
)

// Patterns are tried in order; the first in-range four-digit match wins.
var yearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)năm\s+(\d+)`),
	regexp.MustCompile(`(\d+)`),
}

// ExtractYear finds a year in text, preferring the "năm YYYY" form.
func ExtractYear(text string) (int, bool) {
	for _, re := range yearPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m[1]) != 4 {
				continue
			}
			year, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if year >= MinYear && year <= MaxYear {
				return year, true
			}
		}
	}
	return 0, false
}

// ExtractYearPtr is ExtractYear returning nil when no year is found.
func ExtractYearPtr(text string) *int {
	if y, ok := ExtractYear(text); ok {
		return &y
	}
	return nil
}

// ChunkIsValid reports whether year lies in the chunk's inclusive validity window.
// A nil year always passes.
func ChunkIsValid(chunk *models.Chunk, year *int) bool {
	if year == nil {
		return true
	}
	from, to := chunk.Window()
	return from <= *year && *year <= to
}

// FilterChunks keeps the chunks valid in year, preserving order.
func FilterChunks(chunks []*models.Chunk, year *int) []*models.Chunk {
	if year == nil {
		return chunks
	}
	out := make([]*models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if ChunkIsValid(c, year) {
			out = append(out, c)
		}
	}
	return out
}
