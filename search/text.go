package search

import (
	"strings"
	"unicode"
)

// Words ignored when deciding whether a hit is verbatim.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "i": true, "my": true, "how": true, "what": true,
	"should": true, "can": true,
}

// significantWords lowercases text, splits it on anything that is not a
// letter, digit or apostrophe and drops stop words.
func significantWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, w := range fields {
		w = strings.Trim(w, "'")
		if w != "" && !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

// isVerbatim reports whether every significant query word occurs in text.
// A query made only of stop words never matches.
func isVerbatim(text, query string) bool {
	queryWords := significantWords(query)
	if len(queryWords) == 0 {
		return false
	}
	present := make(map[string]struct{})
	for _, w := range significantWords(text) {
		present[w] = struct{}{}
	}
	for _, w := range queryWords {
		if _, ok := present[w]; !ok {
			return false
		}
	}
	return true
}
