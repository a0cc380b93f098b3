package llm

import (
	"context"
	"sort"
	"unicode"
)

// language is a coarse script classification used only to decide
// whether a reranker query variant and a candidate document are worth
// comparing at all. It is not a full language identifier: detection is
// reduced to script presence, which is all this wrapper needs to decide
// whether a comparison is worth making.
type language string

const (
	languageCJK     language = "cjk"
	languageLatin   language = "latin"
	languageUnknown language = "unknown"
)

func detectLanguage(text string) language {
	hasCJK, hasLatin := false, false
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			hasCJK = true
		case unicode.IsLetter(r) && r <= unicode.MaxASCII:
			hasLatin = true
		}
	}
	switch {
	case hasCJK:
		return languageCJK
	case hasLatin:
		return languageLatin
	default:
		return languageUnknown
	}
}

// QueryVariantReranker wraps a single-query Reranker to rerank against
// several query variants at once: synonym/translation expansion feeds
// several phrasings of the same search into rerank. The first variant
// reranks every document; later variants only rerank documents whose
// detected language overlaps that variant's language (skipping
// obviously-irrelevant cross-language comparisons), and a document's
// final score is the maximum it received across all variants it was
// compared against.
type QueryVariantReranker struct {
	inner Reranker
}

// NewQueryVariantReranker wraps inner.
func NewQueryVariantReranker(inner Reranker) *QueryVariantReranker {
	return &QueryVariantReranker{inner: inner}
}

// RerankMultiQuery scores documents against every query variant and
// returns one hit per document that was compared at least once, sorted
// descending by its best score across variants.
func (w *QueryVariantReranker) RerankMultiQuery(ctx context.Context, queries []string, documents []string) ([]RerankHit, error) {
	if len(queries) == 0 || len(documents) == 0 {
		return nil, nil
	}

	docLangs := make([]language, len(documents))
	for i, d := range documents {
		docLangs[i] = detectLanguage(d)
	}

	best := make([]float64, len(documents))
	seen := make([]bool, len(documents))

	for qi, q := range queries {
		var subsetIdx []int
		if qi == 0 {
			// The first variant is unconditionally compared against
			// every document, establishing a baseline score for all.
			subsetIdx = make([]int, len(documents))
			for i := range documents {
				subsetIdx[i] = i
			}
		} else {
			qLang := detectLanguage(q)
			for i, dl := range docLangs {
				if dl == qLang || dl == languageUnknown || qLang == languageUnknown {
					subsetIdx = append(subsetIdx, i)
				}
			}
		}
		if len(subsetIdx) == 0 {
			continue
		}

		subsetDocs := make([]string, len(subsetIdx))
		for i, idx := range subsetIdx {
			subsetDocs[i] = documents[idx]
		}

		hits, err := w.inner.Rerank(ctx, q, subsetDocs)
		if err != nil {
			// Fail-open: this variant contributes nothing, but documents
			// already scored by other variants are unaffected.
			continue
		}
		for _, h := range hits {
			if h.Index < 0 || h.Index >= len(subsetIdx) {
				continue
			}
			docIdx := subsetIdx[h.Index]
			seen[docIdx] = true
			if h.Score > best[docIdx] {
				best[docIdx] = h.Score
			}
		}
	}

	out := make([]RerankHit, 0, len(documents))
	for i, ok := range seen {
		if ok {
			out = append(out, RerankHit{Index: i, Score: best[i]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
