package keyword

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Segmenter joins multi-word Vietnamese terms into single tokens.
type Segmenter interface {
	Segment(tokens []string) []string
}

// Tokenizer composes text to NFC, lower-cases it, splits on anything that is not a letter, mark or digit
// (so Vietnamese diacritics survive), optionally segments compounds, and drops
// tokens of one rune or less.
type Tokenizer struct {
	segmenter Segmenter
}

// NewTokenizer returns a tokenizer. segmenter may be nil.
func NewTokenizer(segmenter Segmenter) *Tokenizer {
	return &Tokenizer{segmenter: segmenter}
}

// Tokenize splits text into index terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	if t != nil && t.segmenter != nil {
		words = t.segmenter.Segment(words)
	}
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) > 1 {
			out = append(out, w)
		}
	}
	return out
}

// Tokenize uses a tokenizer without segmentation.
func Tokenize(text string) []string {
	return (&Tokenizer{}).Tokenize(text)
}

// splitWords composes decomposed diacritics so NFD and NFC input yield the same terms.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(norm.NFC.String(text)), isSeparator)
}

func isSeparator(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || r == '_')
}

// DictionarySegmenter greedily joins the longest known compound (up to maxWords words)
// with underscores, e.g. "hiến pháp" -> "hiến_pháp".
type DictionarySegmenter struct {
	compounds map[string]struct{}
	maxWords  int
}

// NewDictionarySegmenter builds a segmenter from space-separated compound terms.
func NewDictionarySegmenter(compounds []string) *DictionarySegmenter {
	s := &DictionarySegmenter{compounds: make(map[string]struct{}, len(compounds))}
	for _, c := range compounds {
		words := splitWords(c)
		if len(words) < 2 {
			continue
		}
		s.compounds[strings.Join(words, "_")] = struct{}{}
		if len(words) > s.maxWords {
			s.maxWords = len(words)
		}
	}
	return s
}

// Compounds returns the known compounds in underscore form.
func (s *DictionarySegmenter) Compounds() []string {
	out := make([]string, 0, len(s.compounds))
	for c := range s.compounds {
		out = append(out, strings.ReplaceAll(c, "_", " "))
	}
	return out
}

// Segment implements Segmenter.
func (s *DictionarySegmenter) Segment(tokens []string) []string {
	if s.maxWords < 2 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := 1
		for n := s.maxWords; n >= 2; n-- {
			if i+n > len(tokens) {
				continue
			}
			if _, ok := s.compounds[strings.Join(tokens[i:i+n], "_")]; ok {
				matched = n
				break
			}
		}
		out = append(out, strings.Join(tokens[i:i+matched], "_"))
		i += matched
	}
	return out
}
