// Package rank implements lexical (BM25) ranking over the indexed note
// corpus, with lazy, race-free index construction.
package rank

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenLen = 3

// Tokenize lowercases text and splits it into alphanumeric runs, dropping
// tokens shorter than three characters. It is a pure function and is applied
// identically at index-build time and at query time.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
