package annotate

// Span is an inclusive range of zero-based word positions.
type Span struct {
	Start int
	End   int
}

// Locate finds the leftmost occurrence of target as a contiguous run of
// words in source. Both are normalized first. The second return value is
// false when target is empty or does not occur.
func Locate(source, target string) (Span, bool) {
	words := normalizedWords(source)
	search := normalizedWords(target)
	if len(search) == 0 || len(search) > len(words) {
		return Span{}, false
	}

	for i := 0; i+len(search) <= len(words); i++ {
		if equalWords(words[i:i+len(search)], search) {
			return Span{Start: i, End: i + len(search) - 1}, true
		}
	}
	return Span{}, false
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
