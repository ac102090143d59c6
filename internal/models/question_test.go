package models

import (
	"strings"
	"testing"
)

func TestQuestion_OptionMapFromChoices(t *testing.T) {
	q := &Question{QID: "q1", Text: "x", Choices: []string{"a", "b", "c"}}
	m := q.OptionMap()
	if len(m) != 3 || m["A"] != "a" || m["C"] != "c" {
		t.Errorf("unexpected option map %v", m)
	}
	if q.FallbackKey() != "A" {
		t.Errorf("fallback key: got %q", q.FallbackKey())
	}
}

func TestQuestion_FallbackKeyUsesExplicitOptions(t *testing.T) {
	q := &Question{Text: "x", Options: map[string]string{"D": "d", "B": "b", "C": "c"}}
	if got := q.FallbackKey(); got != "B" {
		t.Errorf("fallback key: got %q, want B", got)
	}
	keys := q.Keys()
	if strings.Join(keys, "") != "BCD" {
		t.Errorf("keys not sorted: %v", keys)
	}
}

func TestQuestion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       *Question
		wantErr bool
	}{
		{"empty text", &Question{Choices: []string{"a"}}, true},
		{"no options", &Question{Text: "x"}, true},
		{"valid", &Question{Text: "x", Choices: []string{"a", "b"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeChoices(t *testing.T) {
	t.Run("four or fewer untouched", func(t *testing.T) {
		in := []string{"", "b", "c?", "d"}
		out, cont := NormalizeChoices(in)
		if len(out) != 4 || cont != "" {
			t.Errorf("got %v %q", out, cont)
		}
	})
	t.Run("moves fragments to question", func(t *testing.T) {
		in := []string{"= x^2 + 1", "Giá trị nào đúng?", "1", "2", "3", "4", ""}
		out, cont := NormalizeChoices(in)
		if len(out) != 4 {
			t.Fatalf("expected 4 choices, got %v", out)
		}
		if !strings.Contains(cont, "Giá trị nào đúng?") || !strings.HasPrefix(cont, "= x^2") {
			t.Errorf("unexpected continuation %q", cont)
		}
	})
	t.Run("too few real choices keeps original", func(t *testing.T) {
		in := []string{"= a", "= b", "c", "d", "e"}
		out, cont := NormalizeChoices(in)
		if len(out) != 5 || cont != "" {
			t.Errorf("got %v %q", out, cont)
		}
	})
}

func TestQuestion_FormatForLLM(t *testing.T) {
	q := &Question{Text: "Thủ đô của Việt Nam?", Choices: []string{"Hà Nội", "Huế", "Đà Nẵng", "Sài Gòn"}}
	s := q.FormatForLLM()
	for _, want := range []string{"Câu hỏi: Thủ đô", "A) Hà Nội", "D) Sài Gòn", "A, B, C hoặc D"} {
		if !strings.Contains(s, want) {
			t.Errorf("formatted prompt missing %q:\n%s", want, s)
		}
	}
	q.Choices = append(q.Choices, "Cần Thơ")
	if !strings.Contains(q.FormatForLLM(), "A đến E") {
		t.Error("expected range notation for more than four options")
	}
}

func TestRetrievalConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RetrievalConfig
		wantErr bool
	}{
		{"valid", RetrievalConfig{TopK: 5, SparseWeight: 0.3, DenseWeight: 0.7}, false},
		{"sum not one", RetrievalConfig{TopK: 5, SparseWeight: 0.5, DenseWeight: 0.6}, true},
		{"negative", RetrievalConfig{TopK: 5, SparseWeight: -0.5, DenseWeight: 1.5}, true},
		{"zero top_k", RetrievalConfig{SparseWeight: 0.5, DenseWeight: 0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDomain(t *testing.T) {
	tests := map[string]Domain{
		"law":               DomainLaw,
		"Lịch sử":           DomainHistory,
		"general_knowledge": DomainGeneralKnowledge,
		"general-knowledge": DomainGeneralKnowledge,
		"Văn hóa":           DomainCulture,
	}
	for in, want := range tests {
		got, ok := ParseDomain(in)
		if !ok || got != want {
			t.Errorf("ParseDomain(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseDomain("astrology"); ok {
		t.Error("unknown domain should not parse")
	}
}

func TestChunk_Window(t *testing.T) {
	c := Chunk{ID: "c"}
	from, to := c.Window()
	if from != 1900 || to != 9999 {
		t.Errorf("default window: got %d..%d", from, to)
	}
	if c.HasExplicitWindow() {
		t.Error("default window should not be explicit")
	}
	c.ValidFrom = 2013
	if !c.HasExplicitWindow() {
		t.Error("window with valid_from should be explicit")
	}
}
