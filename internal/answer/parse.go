// Package answer extracts an option letter from free-form model output.
package answer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
)

// Outcome records which parsing layer produced the letter.
type Outcome string

const (
	OutcomeJSON     Outcome = "json"
	OutcomeMarker   Outcome = "marker"
	OutcomeQuoted   Outcome = "quoted"
	OutcomeFallback Outcome = "fallback"
)

// Result is a parsed answer. Letter is empty only when no keys were offered.
type Result struct {
	Letter  string  `json:"letter"`
	Outcome Outcome `json:"outcome"`
}

// Parsed reports whether the letter came from the model output rather than the fallback.
func (r Result) Parsed() bool {
	return r.Outcome != OutcomeFallback
}

var markerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:ĐÁP ÁN|ANSWER|LỰA CHỌN)[^:\n]{0,40}:\s*\**\s*[\(\[]?([A-Z])\b`),
	regexp.MustCompile(`\*\*\s*([A-Z])\s*\)`),
	regexp.MustCompile(`(?m)^\s*([A-Z])\)`),
}

// Parse returns the first accepted letter found by, in order: a JSON object with an
// "answer" field, explicit answer markers, a quoted or bracketed letter, and finally
// the lexicographically first key. Letters match keys case-insensitively and are
// returned as the key was presented.
func Parse(text string, keys []string) Result {
	sorted, allowed := normalizeKeys(keys)
	if len(sorted) == 0 {
		return Result{Outcome: OutcomeFallback}
	}

	if letter, ok := fromJSON(text, allowed); ok {
		return Result{Letter: letter, Outcome: OutcomeJSON}
	}

	upper := strings.ToUpper(text)
	for _, re := range markerPatterns {
		for _, m := range re.FindAllStringSubmatch(upper, -1) {
			if key, ok := allowed[m[1]]; ok {
				return Result{Letter: key, Outcome: OutcomeMarker}
			}
		}
	}

	for _, k := range sorted {
		u := strings.ToUpper(k)
		for _, form := range []string{`"` + u + `"`, `'` + u + `'`, `(` + u + `)`, `[` + u + `]`} {
			if strings.Contains(upper, form) {
				return Result{Letter: k, Outcome: OutcomeQuoted}
			}
		}
	}

	return Result{Letter: sorted[0], Outcome: OutcomeFallback}
}

func fromJSON(text string, allowed map[string]string) (string, bool) {
	raw := llm.ExtractJSONObject(text)
	if !strings.HasPrefix(raw, "{") {
		return "", false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", false
	}
	for k, v := range obj {
		if !strings.EqualFold(k, "answer") {
			continue
		}
		letter := strings.ToUpper(strings.TrimSpace(fmt.Sprint(v)))
		letter = strings.Trim(letter, ".)( ")
		if key, ok := allowed[letter]; ok {
			return key, true
		}
	}
	return "", false
}

// normalizeKeys returns the trimmed keys in sorted order and a map from each upper-cased
// key to its presented form. Keys equal up to case keep the first one seen.
func normalizeKeys(keys []string) ([]string, map[string]string) {
	out := make([]string, 0, len(keys))
	byUpper := make(map[string]string, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		u := strings.ToUpper(k)
		if _, dup := byUpper[u]; dup {
			continue
		}
		byUpper[u] = k
		out = append(out, k)
	}
	sort.Strings(out)
	return out, byUpper
}
