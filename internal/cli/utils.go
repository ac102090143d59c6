// Package cli formats command output for kotae.
package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCSV is qid,answer rows; only predictions support it.
	OutputCSV OutputFormat = "csv"
)

// ParseOutputFormat maps a flag value to a format. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputJSON, OutputCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (text, json, csv)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteRetrieveResults writes retrieval results to w in the given format.
func WriteRetrieveResults(w io.Writer, response *models.RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (domain %s", len(response.Results), response.QueryTime, response.Domain)
	if response.Year != nil {
		fmt.Fprintf(w, ", year %d", *response.Year)
	}
	fmt.Fprintln(w, ")")
	if len(response.Categories) > 0 {
		fmt.Fprintf(w, "Categories: %s\n", strings.Join(response.Categories, ", "))
	}
	fmt.Fprintln(w)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, result *models.RetrievalResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", result.Source, rank, result.Score)
	fmt.Fprintf(w, "ID: %s\n", result.ChunkID)
	if title := result.Title(); title != "" {
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	if cat, ok := result.Metadata["category"].(string); ok && cat != "" {
		fmt.Fprintf(w, "Category: %s\n", cat)
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Content, 200))
	fmt.Fprintln(w)
}

// WriteAnswer writes one routed answer.
func WriteAnswer(w io.Writer, ans models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "%s: %s\n", ans.QID, ans.Letter)
	route := string(ans.Route)
	if ans.Domain != "" {
		route += "/" + string(ans.Domain)
	}
	if route != "" {
		fmt.Fprintf(w, "  route:    %s\n", route)
	}
	if ans.Reason != "" {
		fmt.Fprintf(w, "  reason:   %s\n", ans.Reason)
	}
	if ans.Fallback {
		fmt.Fprintln(w, "  fallback: yes")
	}
	if len(ans.Trace) > 0 {
		fmt.Fprintf(w, "  trace:    %s\n", strings.Join(ans.Trace, " -> "))
	}
	fmt.Fprintf(w, "  time:     %dms\n", ans.Duration)
	return nil
}

// WritePredictions writes [{qid, answer}] as JSON, or qid,answer CSV with a header.
// Text output is one "qid answer" pair per line.
func WritePredictions(w io.Writer, predictions []models.Prediction, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if predictions == nil {
			predictions = []models.Prediction{}
		}
		return writeJSON(w, predictions)
	case OutputCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"qid", "answer"}); err != nil {
			return err
		}
		for _, p := range predictions {
			if err := cw.Write([]string{p.QID, p.Answer}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		for _, p := range predictions {
			fmt.Fprintf(w, "%s\t%s\n", p.QID, p.Answer)
		}
		return nil
	}
}

// WriteAccuracy prints the evaluation summary of a graded batch.
func WriteAccuracy(w io.Writer, correct, graded, fallbacks int) {
	pct := 0.0
	if graded > 0 {
		pct = 100 * float64(correct) / float64(graded)
	}
	fmt.Fprintf(w, "Accuracy: %d/%d (%.2f%%), fallbacks: %d\n", correct, graded, pct, fallbacks)
}

// WriteSafety writes a firewall verdict.
func WriteSafety(w io.Writer, res models.SafetyCheckResult, threshold float64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			models.SafetyCheckResult
			Threshold float64 `json:"threshold"`
		}{res, threshold})
	}
	verdict := "safe"
	if !res.IsSafe {
		verdict = "BLOCKED"
	}
	fmt.Fprintf(w, "%s (similarity %.4f, threshold %.2f)\n", verdict, res.SimilarityScore, threshold)
	if res.MatchedQuery != "" {
		fmt.Fprintf(w, "closest: %s\n", res.MatchedQuery)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
