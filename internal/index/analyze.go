package index

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/kljensen/snowball/russian"
	"golang.org/x/text/unicode/norm"

	"github.com/TobiSchelling/textlib/internal/annotate"
)

// searchText reduces text to the stemmed terms stored in the full-text
// tables. Queries go through the same terms, so "лису" finds "лиса" and
// "jump" finds "jumping".
func searchText(text string) string {
	return strings.Join(searchTerms(text), " ")
}

func searchTerms(text string) []string {
	words := strings.Fields(annotate.Normalize(text))
	for i, w := range words {
		words[i] = stem(w)
	}
	return words
}

// stem picks the Russian stemmer for Cyrillic words and the English one
// for everything else. Latin diacritics are folded before stemming.
func stem(word string) string {
	if isCyrillic(word) {
		return russian.Stem(word, false)
	}
	return english.Stem(foldDiacritics(word), false)
}

func isCyrillic(word string) bool {
	for _, r := range word {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

func foldDiacritics(word string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, norm.NFD.String(word))
	return norm.NFC.String(stripped)
}
