package e2e

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestBuildCorpus_Documents(t *testing.T) {
	c := BuildCorpus()
	if c.TotalDocs != len(c.Documents) || c.TotalDocs == 0 {
		t.Fatalf("TotalDocs = %d, len(Documents) = %d", c.TotalDocs, len(c.Documents))
	}
	seen := make(map[string]bool)
	for _, d := range c.Documents {
		if seen[d.File] {
			t.Errorf("duplicate file %s", d.File)
		}
		seen[d.File] = true
		if d.Category == "" || d.Content == "" {
			t.Errorf("%s: missing category or content", d.File)
		}
		if d.ExpireAt != 0 && d.ExpireAt < d.ValidFrom {
			t.Errorf("%s: window %d..%d is inverted", d.File, d.ValidFrom, d.ExpireAt)
		}
	}
}

func TestBuildCorpus_QueryTestCasesExist(t *testing.T) {
	c := BuildCorpus()
	if c.TotalQueries != len(queryPhrases) {
		t.Fatalf("expected %d query cases, got %d", len(queryPhrases), c.TotalQueries)
	}
	for i, tc := range c.TestCases {
		if tc.Query == "" {
			t.Errorf("test case %d: empty query", i)
		}
		if len(tc.ExpectedFiles) == 0 {
			t.Errorf("test case %d: no expected files", i)
		}
		if _, ok := models.ParseDomain(string(tc.Domain)); !ok {
			t.Errorf("test case %d: invalid domain %q", i, tc.Domain)
		}
	}
}

func TestBuildCorpus_ExpectedDocsContainQueryWord(t *testing.T) {
	c := BuildCorpus()
	byFile := make(map[string]E2EDocument)
	for _, d := range c.Documents {
		byFile[d.File] = d
	}
	for _, tc := range c.TestCases {
		first := strings.Fields(tc.Query)[0]
		for _, f := range tc.ExpectedFiles {
			doc, ok := byFile[f]
			if !ok {
				t.Errorf("query %q: expected file %s not in corpus", tc.Query, f)
				continue
			}
			if !containsPhrase(doc, first) {
				t.Errorf("query %q: %s does not contain %q", tc.Query, f, first)
			}
		}
	}
}

func TestBuildCorpus_YearCasesMatchWindows(t *testing.T) {
	c := BuildCorpus()
	byFile := make(map[string]E2EDocument)
	for _, d := range c.Documents {
		byFile[d.File] = d
	}
	for _, tc := range c.TestCases {
		if tc.Year == nil {
			continue
		}
		for _, f := range tc.ExpectedFiles {
			d := byFile[f]
			if d.ValidFrom > *tc.Year || (d.ExpireAt != 0 && d.ExpireAt < *tc.Year) {
				t.Errorf("query %q: %s is not valid in %d", tc.Query, f, *tc.Year)
			}
		}
	}
}

func TestCorpus_Categories(t *testing.T) {
	c := BuildCorpus()
	cats := c.Categories()
	if len(cats) < 10 {
		t.Errorf("expected documents across many categories, got %v", cats)
	}
	if cats[0] != c.Documents[0].Category {
		t.Errorf("first category = %q, want %q", cats[0], c.Documents[0].Category)
	}
}

func TestContainsPhrase(t *testing.T) {
	d := E2EDocument{Title: "Phở Hà Nội", Content: "Phở bò nấu nước dùng từ xương ống."}
	if !containsPhrase(d, "Hà Nội") {
		t.Error("expected title match")
	}
	if !containsPhrase(d, "phở bò") {
		t.Error("expected case-insensitive content match")
	}
	if containsPhrase(d, "bún chả") {
		t.Error("unexpected match")
	}
}
