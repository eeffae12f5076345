// Package lexical is the BM25 engine adapter: per-domain bleve indexes with
// an Arabic-folding analyzer, script-aware field boosts and a nil sentinel
// on engine failure that tells the caller to fall back to SQL matching.
package lexical

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/noorlib/bahith/internal/arabic"
)

const (
	// ArabicFoldFilterName strips diacritics and folds letter variants so
	// index terms match normalized queries.
	ArabicFoldFilterName = "arabic_fold"

	// ArabicAnalyzerName is the default analyzer for all Arabic text fields.
	ArabicAnalyzerName = "arabic_search"
)

func init() {
	_ = registry.RegisterTokenFilter(ArabicFoldFilterName, arabicFoldConstructor)
}

func arabicFoldConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &arabicFoldFilter{}, nil
}

// arabicFoldFilter applies the query normalizer to every token, so the
// indexed vocabulary lives in the same folded space as normalized queries.
type arabicFoldFilter struct{}

func (f *arabicFoldFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		folded := arabic.Normalize(string(token.Term))
		if folded == "" {
			continue
		}
		token.Term = []byte(folded)
		out = append(out, token)
	}
	return out
}

// newIndexMapping builds the shared mapping: unicode tokenization,
// lowercasing for latin text and Arabic folding, with a keyword analyzer
// available for exact subfields and identifiers.
func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := mapping.NewIndexMapping()

	err := m.AddCustomAnalyzer(ArabicAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			ArabicFoldFilterName,
		},
	})
	if err != nil {
		return nil, err
	}

	m.DefaultAnalyzer = ArabicAnalyzerName
	return m, nil
}

// textField returns a stored text field using the Arabic analyzer.
func textField() *mapping.FieldMapping {
	fm := mapping.NewTextFieldMapping()
	fm.Analyzer = ArabicAnalyzerName
	return fm
}

// exactField returns a stored keyword field for exact and prefix matching.
func exactField() *mapping.FieldMapping {
	fm := mapping.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	return fm
}

// numberField returns a stored numeric field.
func numberField() *mapping.FieldMapping {
	return mapping.NewNumericFieldMapping()
}
