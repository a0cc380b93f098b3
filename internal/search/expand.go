package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	amanerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/llm"
)

// DefaultExpanderCacheSize bounds the number of distinct queries whose
// expansion is cached in memory.
const DefaultExpanderCacheSize = 512

// expansionPrompt is the structured completion prompt asked once per
// query: at least 5 synonyms in the query's own language, an is_english
// flag, and at least 6 English translations when the query is not
// already English.
const expansionPrompt = `You are a multilingual search query expander.
Given the search query below, respond with strict JSON only, no prose,
matching exactly this shape:

{"synonym_list": ["...", ...], "is_english": true|false, "translation_list": ["...", ...]}

Rules:
- synonym_list: at least 5 synonyms or closely related phrases, in the
  SAME language as the query.
- is_english: true iff the query is written in English.
- translation_list: if is_english is false, at least 6 English
  translations/paraphrases of the query; otherwise an empty list.

Query: %s`

// expansionResponse is the strict JSON shape the completion call must
// produce; a malformed or non-JSON response triggers the bare-query
// fallback.
type expansionResponse struct {
	SynonymList     []string `json:"synonym_list"`
	IsEnglish       bool     `json:"is_english"`
	TranslationList []string `json:"translation_list"`
}

// Expander expands a query before retrieval: one structured LLM call
// for synonyms/translations, then one batched embedding call
// covering synonyms, translations, and the bare query, sliced back into
// the returned arrays in that fixed order. Results are cached by query
// string, since repeated queries (pagination, retries) must not pay for
// expansion twice.
type Expander struct {
	completer  llm.Completer
	embedder   llm.Embedder
	translator llm.Translator
	model      string
	cache      *lru.Cache[string, SearchExpansion]
}

// NewExpander constructs an Expander. cacheSize <= 0 uses
// DefaultExpanderCacheSize.
func NewExpander(completer llm.Completer, embedder llm.Embedder, model string, cacheSize int) *Expander {
	if cacheSize <= 0 {
		cacheSize = DefaultExpanderCacheSize
	}
	cache, _ := lru.New[string, SearchExpansion](cacheSize)
	return &Expander{completer: completer, embedder: embedder, model: model, cache: cache}
}

// UseTranslator wires an optional translation service. When set, a
// non-English query whose completion yielded no English translations
// gets its synonym list batch-translated instead of searching the
// translation column with nothing.
func (e *Expander) UseTranslator(t llm.Translator) {
	e.translator = t
}

// Expand returns the SearchExpansion for query q.
func (e *Expander) Expand(ctx context.Context, q string) (SearchExpansion, error) {
	if cached, ok := e.cache.Get(q); ok {
		return cached, nil
	}

	synonyms, translations, isEnglish := e.complete(ctx, q)

	// Dedup the synonym set and drop the bare query if the model echoed
	// it back, so it is never counted twice once prepended below.
	dedupedSynonyms := dedupStrings(synonyms)
	dedupedSynonyms = removeString(dedupedSynonyms, q)
	sort.Sort(sort.Reverse(sort.StringSlice(dedupedSynonyms)))

	if !isEnglish && len(translations) == 0 {
		translations = e.translateFallback(ctx, append([]string{q}, dedupedSynonyms...))
	}

	// All synonyms plus all translations plus the bare query are
	// embedded in one batch call, in that fixed order; the returned
	// matrix is sliced back along the same boundaries.
	batch := make([]string, 0, len(dedupedSynonyms)+len(translations)+1)
	batch = append(batch, dedupedSynonyms...)
	batch = append(batch, translations...)
	batch = append(batch, q)

	embeddings, err := e.embedder.CreateEmbeddings(ctx, batch)
	if err != nil {
		return SearchExpansion{}, amanerrors.EmbeddingFailed("expansion embedding batch failed", err)
	}
	if len(embeddings) != len(batch) {
		return SearchExpansion{}, amanerrors.EmbeddingFailed("expansion embedding count mismatch", nil)
	}
	queryEmbedding := embeddings[len(batch)-1]
	translationEmbeddings := embeddings[len(dedupedSynonyms) : len(dedupedSynonyms)+len(translations)]

	// The query itself is prepended to the (deduplicated) synonym list,
	// carrying its own batch embedding.
	finalSynonyms := make([]string, 0, len(dedupedSynonyms)+1)
	finalSynonyms = append(finalSynonyms, q)
	finalSynonyms = append(finalSynonyms, dedupedSynonyms...)
	finalSynonymEmbeddings := make([][]float32, 0, len(dedupedSynonyms)+1)
	finalSynonymEmbeddings = append(finalSynonymEmbeddings, queryEmbedding)
	finalSynonymEmbeddings = append(finalSynonymEmbeddings, embeddings[:len(dedupedSynonyms)]...)

	exp := SearchExpansion{
		Synonyms:              finalSynonyms,
		SynonymEmbeddings:     finalSynonymEmbeddings,
		IsEnglish:             isEnglish,
		Translations:          translations,
		TranslationEmbeddings: translationEmbeddings,
	}
	e.cache.Add(q, exp)
	return exp, nil
}

// complete issues the one structured completion call. On failure or an
// empty synonym list it falls back to synonyms = [q], translations =
// [], is_english = isascii(q).
func (e *Expander) complete(ctx context.Context, q string) (synonyms, translations []string, isEnglish bool) {
	var resp expansionResponse
	prompt := buildPrompt(q)
	if err := e.completer.Complete(ctx, prompt, e.model, 512, &resp); err != nil {
		return []string{q}, nil, isASCII(q)
	}
	if len(resp.SynonymList) == 0 {
		return []string{q}, nil, isASCII(q)
	}
	if resp.IsEnglish {
		return resp.SynonymList, nil, true
	}
	return resp.SynonymList, resp.TranslationList, false
}

// translateFallback batch-translates the query and its synonyms into
// English, one bounded-concurrency Translate call per term. A term whose
// translation permanently fails is simply skipped.
func (e *Expander) translateFallback(ctx context.Context, terms []string) []string {
	if e.translator == nil || len(terms) == 0 {
		return nil
	}
	units := make([]func(ctx context.Context) (string, error), len(terms))
	for i, term := range terms {
		term := term
		units[i] = func(ctx context.Context) (string, error) {
			tr, err := e.translator.Translate(ctx, term, "en")
			if err != nil {
				return "", err
			}
			return tr.Text, nil
		}
	}
	cfg := GatherConfig{
		Concurrency: 4,
		Retry: amanerrors.RetryConfig{
			MaxRetries:   1,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}
	results, err := Gather(ctx, units, cfg)
	if err != nil {
		return nil
	}
	var out []string
	for _, r := range results {
		if r != nil && *r != "" {
			out = append(out, *r)
		}
	}
	return dedupStrings(out)
}

func buildPrompt(q string) string {
	return strings.Replace(expansionPrompt, "%s", q, 1)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func removeString(in []string, target string) []string {
	out := in[:0]
	for _, s := range in {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
