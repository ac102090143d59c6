package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("Điện Biên Phủ", 4); got != "Điện..." {
		t.Errorf("multi-byte runes must not be split, got %q", got)
	}
	if got := Truncate("Huế", 3); got != "Huế" {
		t.Errorf("three runes fit in maxLen 3, got %q", got)
	}
}
