package classify

import (
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

var readingPatterns = compileAll(
	`đoạn văn`,
	`theo đoạn`,
	`bài đọc`,
	`đoạn thông tin`,
	`văn bản trên`,
	`dựa vào thông tin`,
	`context:`,
	`passage:`,
	`\[1\]`,
)

var stemPatterns = compileAll(
	`\$`,
	`\\frac`,
	`\\int`,
	`\\sum`,
	`\\lim|\blim\b`,
	`\d+\s*[-+*/^=×÷]\s*\d+`,
	`√`,
	`\btính\b`,
	`giá trị`,
	`hàm số`,
	`phương trình`,
	`tích phân`,
	`xác suất`,
	`đạo hàm`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// RouteByPattern assigns a category from surface markers in the question and its options.
// Reading markers win over STEM markers; anything else is RETRIEVAL.
func RouteByPattern(q *models.Question) models.Category {
	opts := q.OptionMap()
	parts := make([]string, 0, len(opts)+1)
	parts = append(parts, q.Text)
	for _, k := range models.SortedKeys(opts) {
		parts = append(parts, opts[k])
	}
	text := strings.ToLower(strings.Join(parts, " "))

	if matchesAny(text, readingPatterns) {
		return models.CategoryReading
	}
	if matchesAny(text, stemPatterns) {
		return models.CategoryMath
	}
	return models.CategoryRetrieval
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
