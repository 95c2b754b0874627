package util

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultSnippetLen bounds error-response bodies quoted in errors.
const DefaultSnippetLen = 512

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, noting the original size.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// BodySnippet reads at most DefaultSnippetLen bytes of an HTTP error body
// for inclusion in an error message.
func BodySnippet(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, DefaultSnippetLen+1))
	s := strings.TrimSpace(string(raw))
	if len(raw) > DefaultSnippetLen {
		return s[:min(len(s), DefaultSnippetLen)] + "... [truncated]"
	}
	return s
}
