package arabic

// Query is the parsed, normalized form of a raw user query. It is built
// once per request and never mutated afterwards.
type Query struct {
	Raw        string
	Normalized string
	Script     Script
	Tokens     []string
	Phrases    []string
}

// ParseQuery normalizes raw and derives script, tokens and quoted phrases.
func ParseQuery(raw string) Query {
	normalized := Normalize(raw)
	return Query{
		Raw:        raw,
		Normalized: normalized,
		Script:     DetectScript(normalized),
		Tokens:     Tokenize(normalized),
		Phrases:    QuotedPhrases(raw),
	}
}

// HasPhrase reports whether the query carried a quoted multi-token phrase.
func (q Query) HasPhrase() bool {
	return len(q.Phrases) > 0
}

// minSemanticLength is the smallest normalized no-space length that still
// produces a useful embedding; anything shorter matches everything.
const minSemanticLength = 4

// SkipSemantic reports whether the dense-vector branch should be skipped:
// quoted phrases want exact matching, and very short queries embed into
// noise.
func (q Query) SkipSemantic() bool {
	if q.HasPhrase() {
		return true
	}
	return CountLetters(q.Normalized) < minSemanticLength
}
