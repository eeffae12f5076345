package arabic

import "strings"

// quotePairs maps an opening quote to its accepted closing quotes.
// Straight quotes pair with themselves; guillemets and low-9 quotes pair
// with their typographic partners.
var quotePairs = map[rune][]rune{
	'"': {'"'},
	'«': {'»'},
	'„': {'“', '”', '"'},
	'“': {'”', '“'},
}

// QuotedPhrases extracts the contents of matched quote pairs from s.
// Only spans of two or more tokens count as phrases; a quoted single word
// is treated as an ordinary term.
func QuotedPhrases(s string) []string {
	var phrases []string
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		closers, ok := quotePairs[runes[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(runes); j++ {
			if !isCloser(runes[j], closers) {
				continue
			}
			content := strings.TrimSpace(string(runes[i+1 : j]))
			if len(Tokenize(content)) >= 2 {
				phrases = append(phrases, content)
			}
			i = j
			break
		}
	}

	return phrases
}

// HasQuotedPhrase reports whether s contains at least one multi-token
// quoted phrase.
func HasQuotedPhrase(s string) bool {
	return len(QuotedPhrases(s)) > 0
}

func isCloser(r rune, closers []rune) bool {
	for _, c := range closers {
		if r == c {
			return true
		}
	}
	return false
}
