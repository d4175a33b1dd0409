package annotate

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s and drops every rune that is not a letter, a
// number, an underscore or whitespace. Both sides of a comparison must go
// through it.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(s))
}

// normalizedWords returns the whitespace-separated words of Normalize(s).
func normalizedWords(s string) []string {
	return strings.Fields(Normalize(s))
}
