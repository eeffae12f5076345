// Package arabic provides deterministic text transforms for Arabic search
// queries: orthographic normalization, script detection, quoted-phrase
// extraction and the dynamic similarity threshold used by the vector engine.
package arabic

import (
	"strings"
	"unicode"
)

// Codepoints folded or stripped by Normalize.
const (
	hamza           = 'ء'
	alefMadda       = 'آ'
	alefHamzaAbove  = 'أ'
	alefHamzaBelow  = 'إ'
	alef            = 'ا'
	tehMarbuta      = 'ة'
	heh             = 'ه'
	alefMaksura     = 'ى'
	yeh             = 'ي'
	alefWasla       = 'ٱ'
	superscriptAlef = 'ٰ'
)

// Normalize strips Arabic diacritics, folds alef variants to bare alef,
// drops standalone hamza, folds alef maksura to yeh and teh marbuta to heh,
// and collapses runs of whitespace to a single space. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r >= 'ً' && r <= 'ٟ', r == superscriptAlef:
			// tashkeel range
			continue
		case r == alefMadda, r == alefHamzaAbove, r == alefHamzaBelow, r == alefWasla:
			b.WriteRune(alef)
		case r == hamza:
			continue
		case r == alefMaksura:
			b.WriteRune(yeh)
		case r == tehMarbuta:
			b.WriteRune(heh)
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits a query into whitespace-separated tokens.
func Tokenize(s string) []string {
	return strings.Fields(s)
}

// CountLetters returns the number of non-space runes in s.
func CountLetters(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
