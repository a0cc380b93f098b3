package search

import (
	"context"
	"path"
	"strings"
	"unicode"

	"github.com/Aman-CERP/amanmcp/internal/chinese"
	"github.com/Aman-CERP/amanmcp/internal/fuzzy"
	"github.com/Aman-CERP/amanmcp/internal/highlight"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// assembler is the per-row tail of the pipeline: it runs the fuzzy
// matcher, re-validates the matches, builds a snippet, and either yields
// an exact-match hit or checks the row against the embedding-only gate.
type assembler struct {
	store       store.Store
	revalidator *revalidator
	builder     *highlight.Builder
}

func newAssembler(st store.Store, rv *revalidator) *assembler {
	return &assembler{store: st, revalidator: rv, builder: highlight.NewBuilder()}
}

// assembled is one row's processed result: either an exact match with a
// snippet, or an embedding-only candidate carrying its cosine distance
// for later sorting, or neither (the row is dropped).
type assembled struct {
	Hit      Hit
	IsExact  bool
	Distance float64
}

// assembleRow processes a single admitted row and reports whether it
// should be emitted at all. queryEmbeddings is the full set of
// expansion-query embeddings (synonyms + translations) used for the
// re-validation pass.
func (a *assembler) assembleRow(ctx context.Context, row *store.Row, q store.ScopeQuery, queryEmbeddings [][]float32) (assembled, bool) {
	it := row.Item
	if !q.AISearch {
		return a.assembleLiteralRow(it, q)
	}
	raw := a.runFuzzyMatch(it, q)
	matches := a.revalidator.revalidate(ctx, tokenSource{
		TokenList:             it.TokenList,
		TranslationTokenList:  it.TranslationTokenList,
		TextNormalized:        it.TextNormalized,
		TranslationNormalized: it.TranslationNormalized,
	}, raw, queryEmbeddings)

	originalSnippet, hasOriginal := a.builder.Build(
		it.TokenList,
		matches.KeywordOriginal,
		sentenceTokenSpans(matches.SentenceOriginal, it.TokenStartIndexList, it.TokenEndIndexList),
	)
	translationSnippet, hasTranslation := a.builder.Build(
		it.TranslationTokenList,
		matches.KeywordTranslation,
		sentenceTokenSpans(matches.SentenceTranslation, it.TranslationTokenStartIndex, it.TranslationTokenEndIndex),
	)

	var markdown string
	switch {
	case hasOriginal:
		markdown = originalSnippet
		if it.HasTraditionalChinese {
			markdown = chinese.ToTraditionalHK(markdown)
		}
	case hasTranslation:
		markdown = translationSnippet
	default:
		if !passesEmbeddingGate(it, row) {
			return assembled{}, false
		}
		return assembled{Hit: hitFor(it, ""), IsExact: false, Distance: row.CosineDistance}, true
	}
	return assembled{Hit: hitFor(it, markdown), IsExact: true}, true
}

// assembleLiteralRow handles the non-AI path: the store admitted the row
// by a case-insensitive substring filter, so the snippet is a single
// literal wrap of the query with no tokenization or re-validation pass.
func (a *assembler) assembleLiteralRow(it *store.Item, q store.ScopeQuery) (assembled, bool) {
	markdown, ok := highlight.WrapLiteral(it.TextNormalized, q.LiteralQuery)
	if !ok {
		return assembled{}, false
	}
	if it.HasTraditionalChinese {
		markdown = chinese.ToTraditionalHK(markdown)
	}
	return assembled{Hit: hitFor(it, markdown), IsExact: true}, true
}

func (a *assembler) runFuzzyMatch(it *store.Item, q store.ScopeQuery) rawMatches {
	sets := a.store.Matches(it, q)
	var origSpans, transSpans []fuzzy.Span
	for _, s := range sets.SentenceOriginal {
		origSpans = append(origSpans, fuzzy.Span{Start: s.Start, End: s.End})
	}
	for _, s := range sets.SentenceTranslation {
		transSpans = append(transSpans, fuzzy.Span{Start: s.Start, End: s.End})
	}
	return rawMatches{
		KeywordOriginal:     sets.KeywordOriginal,
		KeywordTranslation:  sets.KeywordTranslation,
		SentenceOriginal:    origSpans,
		SentenceTranslation: transSpans,
	}
}

func sentenceTokenSpans(spans []fuzzy.Span, starts, ends []int) []highlight.TokenSpan {
	var out []highlight.TokenSpan
	for _, sp := range spans {
		if ts, ok := highlight.TokenRangeForCharSpan(starts, ends, sp.Start, sp.End); ok {
			out = append(out, ts)
		}
	}
	return out
}

// passesEmbeddingGate is the admission rule for rows with no snippet:
// close enough in embedding space, prose-like chunk type, and enough
// non-numeric text to be worth showing.
func passesEmbeddingGate(it *store.Item, row *store.Row) bool {
	if !row.HasCosine || row.CosineDistance >= 0.4 {
		return false
	}
	switch it.ChunkType {
	case store.ChunkTypeText, store.ChunkTypeList, store.ChunkTypeTable:
	default:
		return false
	}
	if len(it.TokenList) <= 1 {
		return false
	}
	if len([]rune(it.TextNormalized)) <= 6 {
		return false
	}
	if allDigitsStripped(it.TextNormalized) {
		return false
	}
	return true
}

func allDigitsStripped(s string) bool {
	seenDigit := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if !unicode.IsDigit(r) {
			return false
		}
		seenDigit = true
	}
	return seenDigit
}

func hitFor(it *store.Item, markdown string) Hit {
	return Hit{
		Markdown:  markdown,
		ID:        it.DocumentKey,
		ChunkIdx:  it.ChunkIndex,
		FileURL:   it.URI,
		Type:      extOf(it.URI),
		FileName:  it.FileName,
		Highlight: highlightFor(it),
		Cursor:    store.SortKeyOf(it),
	}
}

func extOf(uri string) string {
	return strings.TrimPrefix(path.Ext(uri), ".")
}

func highlightFor(it *store.Item) Highlight {
	var h Highlight
	switch it.Type {
	case store.ItemTypePDF, store.ItemTypeImage:
		h.X1 = it.BBox.Coalesce(1, -1)
		h.Y1 = it.BBox.Coalesce(2, -1)
		h.X2 = it.BBox.Coalesce(3, -1)
		h.Y2 = it.BBox.Coalesce(4, -1)
		if it.PageNumber != nil {
			h.PageNumber = *it.PageNumber
		} else {
			h.PageNumber = -1
		}
		if it.PageWidth != nil {
			h.PageWidth = *it.PageWidth
		}
		if it.PageHeight != nil {
			h.PageHeight = *it.PageHeight
		}
	case store.ItemTypeXLSX:
		h.Col = int(it.BBox.Coalesce(1, -1))
		h.Row = int(it.BBox.Coalesce(2, -1))
	default: // md, txt
		h.FromIdx = int(it.BBox.Coalesce(1, -1))
		h.ToIdx = int(it.BBox.Coalesce(2, -1))
	}
	return h
}
