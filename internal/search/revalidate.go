package search

import (
	"context"
	"math"

	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/fuzzy"
	"github.com/Aman-CERP/amanmcp/internal/llm"
)

// RevalidationThreshold is the secondary cosine-similarity cutoff: a
// matched token or span is dropped unless its max cosine similarity
// against some expansion-query embedding exceeds this.
const RevalidationThreshold = 0.8

// matchSets is the per-row matched-token/span sets carried between the
// fuzzy matcher and the highlight builder, after re-validation.
type matchSets struct {
	KeywordOriginal     []int
	KeywordTranslation  []int
	SentenceOriginal    []fuzzy.Span
	SentenceTranslation []fuzzy.Span
}

// revalidator embeds matched tokens/spans and drops those that fail the
// cosine-similarity re-check, guarding against lexical-only false
// positives. An embedding error is fail-open: the caller keeps the
// unvalidated matches rather than discarding the row.
type revalidator struct {
	embedder llm.Embedder
}

// revalidate re-validates one row's matched keyword indices/sentence
// spans against the expansion's query embeddings, independently for the
// keyword and sentence modes.
func (rv *revalidator) revalidate(
	ctx context.Context,
	item tokenSource,
	raw rawMatches,
	queryEmbeddings [][]float32,
) matchSets {
	out := matchSets{}

	out.KeywordOriginal = rv.revalidateKeyword(ctx, item.TokenList, raw.KeywordOriginal, queryEmbeddings)
	out.KeywordTranslation = rv.revalidateKeyword(ctx, item.TranslationTokenList, raw.KeywordTranslation, queryEmbeddings)
	out.SentenceOriginal = rv.revalidateSentence(ctx, item.TextNormalized, raw.SentenceOriginal, queryEmbeddings)
	out.SentenceTranslation = rv.revalidateSentence(ctx, item.TranslationNormalized, raw.SentenceTranslation, queryEmbeddings)
	return out
}

// tokenSource is the subset of store.Item fields re-validation reads.
type tokenSource struct {
	TokenList             []string
	TranslationTokenList  []string
	TextNormalized        string
	TranslationNormalized string
}

// rawMatches is the fuzzy matcher's unvalidated output for one row.
type rawMatches struct {
	KeywordOriginal     []int
	KeywordTranslation  []int
	SentenceOriginal    []fuzzy.Span
	SentenceTranslation []fuzzy.Span
}

func (rv *revalidator) revalidateKeyword(ctx context.Context, tokens []string, idx []int, queryEmbeddings [][]float32) []int {
	if len(idx) == 0 {
		return nil
	}
	texts := make([]string, len(idx))
	for i, tokIdx := range idx {
		texts[i] = tokens[tokIdx]
	}
	keep, err := rv.filterBySimilarity(ctx, texts, queryEmbeddings)
	if err != nil {
		// Fail-open: keep every candidate unvalidated.
		return idx
	}
	out := make([]int, 0, len(idx))
	for i, ok := range keep {
		if ok {
			out = append(out, idx[i])
		}
	}
	return out
}

func (rv *revalidator) revalidateSentence(ctx context.Context, text string, spans []fuzzy.Span, queryEmbeddings [][]float32) []fuzzy.Span {
	if len(spans) == 0 {
		return nil
	}
	runes := []rune(text)
	texts := make([]string, len(spans))
	for i, sp := range spans {
		start, end := sp.Start, sp.End
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		texts[i] = string(runes[start:end])
	}
	keep, err := rv.filterBySimilarity(ctx, texts, queryEmbeddings)
	if err != nil {
		return spans
	}
	out := make([]fuzzy.Span, 0, len(spans))
	for i, ok := range keep {
		if ok {
			out = append(out, spans[i])
		}
	}
	return out
}

// filterBySimilarity embeds texts in a single batch and reports, per
// text, whether its max cosine similarity against any query embedding
// exceeds RevalidationThreshold.
func (rv *revalidator) filterBySimilarity(ctx context.Context, texts []string, queryEmbeddings [][]float32) ([]bool, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(queryEmbeddings) == 0 {
		// No query embeddings to compare against (literal search never
		// builds any): keep every candidate unvalidated rather than
		// discarding a literal match for lack of a vector.
		keep := make([]bool, len(texts))
		for i := range keep {
			keep[i] = true
		}
		return keep, nil
	}
	if rv.embedder == nil {
		// No embedder wired: nothing to validate against, keep everything.
		keep := make([]bool, len(texts))
		for i := range keep {
			keep[i] = true
		}
		return keep, nil
	}
	embeddings, err := rv.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, errors.RerankFailed("revalidation embedding batch failed", err)
	}
	keep := make([]bool, len(texts))
	for i, emb := range embeddings {
		best := -1.0
		for _, qe := range queryEmbeddings {
			if sim := cosineSimilarity(emb, qe); sim > best {
				best = sim
			}
		}
		keep[i] = best > RevalidationThreshold
	}
	return keep, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
