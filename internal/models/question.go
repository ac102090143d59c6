package models

import (
	"fmt"
	"sort"
	"strings"
)

// maxOptions is the number of option letters available (A..Z).
const maxOptions = 26

// Question is a multiple-choice question. Options may be given either as an ordered
// list (Choices, lettered A, B, C...) or as an explicit letter->text map (Options).
type Question struct {
	QID      string            `json:"qid"`
	Text     string            `json:"question"`
	Choices  []string          `json:"choices,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Expected string            `json:"answer,omitempty"`
}

// OptionLetter returns the letter for the i-th choice (0 -> "A").
func OptionLetter(i int) string {
	return string(rune('A' + i))
}

// OptionMap returns the presented options keyed by letter.
func (q *Question) OptionMap() map[string]string {
	if len(q.Options) > 0 {
		return q.Options
	}
	out := make(map[string]string, len(q.Choices))
	for i, c := range q.Choices {
		if i >= maxOptions {
			break
		}
		out[OptionLetter(i)] = c
	}
	return out
}

// Keys returns the presented option keys in lexicographic order.
func (q *Question) Keys() []string {
	return SortedKeys(q.OptionMap())
}

// FallbackKey returns the lexicographically first option key, or "A" when no options are presented.
func (q *Question) FallbackKey() string {
	keys := q.Keys()
	if len(keys) == 0 {
		return "A"
	}
	return keys[0]
}

// Validate checks that the question has text and at least one option.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text cannot be empty")
	}
	if len(q.OptionMap()) == 0 {
		return fmt.Errorf("question %q has no options", q.QID)
	}
	return nil
}

// SortedKeys returns map keys sorted lexicographically.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize cleans malformed choice lists in place: question fragments that leaked
// into the choices (LaTeX continuations, sentences ending in '?') are moved back to
// the question text. Returns true when the question was changed.
func (q *Question) Normalize() bool {
	if len(q.Options) > 0 {
		return false
	}
	cleaned, continuation := NormalizeChoices(q.Choices)
	changed := len(cleaned) != len(q.Choices)
	q.Choices = cleaned
	if continuation != "" {
		q.Text = q.Text + "\n" + continuation
		changed = true
	}
	return changed
}

var latexPrefixes = []string{"=", "&", "\\", "$$", "begin{", "end{"}

// NormalizeChoices separates real choices from question fragments. Lists of four or
// fewer are returned unchanged. The cleaned list is used only when 4..26 choices remain.
func NormalizeChoices(choices []string) (cleaned []string, continuation string) {
	if len(choices) <= 4 {
		return choices, ""
	}
	var parts []string
	for _, c := range choices {
		s := strings.TrimSpace(c)
		if s == "" {
			continue
		}
		if hasAnyPrefix(s, latexPrefixes) || strings.HasSuffix(s, "?") {
			parts = append(parts, c)
			continue
		}
		cleaned = append(cleaned, c)
	}
	if len(cleaned) >= 4 && len(cleaned) <= maxOptions {
		return cleaned, strings.Join(parts, "\n")
	}
	return choices, ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// FormatForLLM renders the question and its options for a generation prompt.
func (q *Question) FormatForLLM() string {
	opts := q.OptionMap()
	keys := SortedKeys(opts)
	var b strings.Builder
	b.WriteString("Câu hỏi: ")
	b.WriteString(q.Text)
	b.WriteString("\n\nCác lựa chọn:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s) %s\n", k, opts[k])
	}
	b.WriteString("\nHãy chọn một đáp án đúng nhất (")
	b.WriteString(choiceRange(keys))
	b.WriteString(").")
	return b.String()
}

func choiceRange(keys []string) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return keys[0]
	case 2, 3, 4:
		return strings.Join(keys[:len(keys)-1], ", ") + " hoặc " + keys[len(keys)-1]
	default:
		return keys[0] + " đến " + keys[len(keys)-1]
	}
}

// Answer is the final decision for one question.
type Answer struct {
	QID      string   `json:"qid"`
	Letter   string   `json:"answer"`
	Route    Category `json:"route,omitempty"`
	Domain   Domain   `json:"domain,omitempty"`
	Fallback bool     `json:"fallback,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Trace    []string `json:"trace,omitempty"`
	Duration int64    `json:"duration_ms,omitempty"`
}

// Prediction is the persisted {qid, answer} pair.
type Prediction struct {
	QID    string `json:"qid"`
	Answer string `json:"answer"`
}
