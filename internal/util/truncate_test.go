package util

import (
	"strings"
	"testing"
)

func TestTruncate_ShortString(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() should not touch short strings, got %q", got)
	}
}

func TestTruncate_ExactLimit(t *testing.T) {
	input := "12345678901234567890"
	if got := Truncate(input, 20); got != input {
		t.Errorf("Truncate() should not truncate at exact limit, got %q", got)
	}
}

func TestTruncate_LongString(t *testing.T) {
	got := Truncate("1234567890abcdefghij", 10)
	if got != "1234567890... [truncated, 20 bytes total]" {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; cutting at 2 would split it.
	got := Truncate("aé bcdef", 2)
	if !strings.HasPrefix(got, "a...") {
		t.Errorf("Truncate() split a rune: %q", got)
	}
}

func TestBodySnippet(t *testing.T) {
	if got := BodySnippet(strings.NewReader("  denied \n")); got != "denied" {
		t.Errorf("BodySnippet() = %q", got)
	}
	long := strings.Repeat("x", DefaultSnippetLen*2)
	got := BodySnippet(strings.NewReader(long))
	if !strings.HasSuffix(got, "... [truncated]") || len(got) != DefaultSnippetLen+len("... [truncated]") {
		t.Errorf("BodySnippet() long body = %d bytes", len(got))
	}
}
