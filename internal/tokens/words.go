package tokens

import (
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

// WordCounter counts Unicode word-boundary segments (UAX #29) after NFC
// normalization. Words, numbers, punctuation and emoji count as one token
// each; whitespace does not.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	seg := words.FromString(norm.NFC.String(text))
	n := 0
	for seg.Next() {
		if !isSpace(seg.Value()) {
			n++
		}
	}
	return n
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
