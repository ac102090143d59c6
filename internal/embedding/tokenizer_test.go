package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("xin chào", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 || ids[3] != 102 {
		t.Errorf("expected CLS/SEP framing, got %v", ids[:4])
	}
	if attn[0] != 1 || attn[4] != 0 {
		t.Errorf("unexpected attention mask %v", attn)
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  A  b  c  ")
	if len(words) != 3 || words[0] != "a" {
		t.Errorf("expected 3 lower-cased words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different strings should hash differently")
	}
	if HashString("một chuỗi rất dài với nhiều ký tự tiếng Việt") < 0 {
		t.Error("hash must be non-negative")
	}
}
