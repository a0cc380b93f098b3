package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Aman-CERP/amanmcp/internal/llm"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt, model string, maxTokens int, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

type fakeEmbedder struct {
	err   error
	calls int
}

// CreateEmbeddings returns one 1-dimensional embedding per input, set to
// the input's position, so tests can assert on ordering without caring
// about real vector content.
func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestExpanderExpandHappyPath(t *testing.T) {
	completer := &fakeCompleter{response: `{"synonym_list":["bill","receipt"],"is_english":true,"translation_list":[]}`}
	embedder := &fakeEmbedder{}
	e := NewExpander(completer, embedder, "test-model", 0)

	exp, err := e.Expand(context.Background(), "invoice")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !exp.IsEnglish {
		t.Fatalf("expected IsEnglish true")
	}
	if len(exp.Translations) != 0 {
		t.Fatalf("expected no translations for an English query, got %v", exp.Translations)
	}

	// The bare query must be prepended to the (deduplicated, reverse
	// sorted) synonym list, each carrying its own batch embedding.
	if len(exp.Synonyms) != 3 || exp.Synonyms[0] != "invoice" {
		t.Fatalf("Synonyms = %v, want bare query first", exp.Synonyms)
	}
	if len(exp.SynonymEmbeddings) != len(exp.Synonyms) {
		t.Fatalf("expected one embedding per synonym, got %d for %d synonyms", len(exp.SynonymEmbeddings), len(exp.Synonyms))
	}
	if completer.calls != 1 || embedder.calls != 1 {
		t.Fatalf("expected exactly one completion and one embedding call, got %d/%d", completer.calls, embedder.calls)
	}
}

func TestExpanderExpandCachesByQuery(t *testing.T) {
	completer := &fakeCompleter{response: `{"synonym_list":["bill"],"is_english":true,"translation_list":[]}`}
	embedder := &fakeEmbedder{}
	e := NewExpander(completer, embedder, "test-model", 0)

	if _, err := e.Expand(context.Background(), "invoice"); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if _, err := e.Expand(context.Background(), "invoice"); err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if completer.calls != 1 || embedder.calls != 1 {
		t.Fatalf("expected the second call to be served from cache, got %d completions, %d embeddings", completer.calls, embedder.calls)
	}
}

func TestExpanderExpandFallsBackOnCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream unavailable")}
	embedder := &fakeEmbedder{}
	e := NewExpander(completer, embedder, "test-model", 0)

	exp, err := e.Expand(context.Background(), "devis détaillé")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if exp.IsEnglish {
		t.Fatalf("expected IsEnglish false for a non-ASCII-detected fallback query")
	}
	if len(exp.Synonyms) != 1 || exp.Synonyms[0] != "devis détaillé" {
		t.Fatalf("expected the fallback synonym list to be just the bare query, got %v", exp.Synonyms)
	}
	if len(exp.Translations) != 0 {
		t.Fatalf("expected no translations on fallback, got %v", exp.Translations)
	}
}

func TestExpanderExpandFallsBackOnEmptySynonymList(t *testing.T) {
	completer := &fakeCompleter{response: `{"synonym_list":[],"is_english":true,"translation_list":[]}`}
	embedder := &fakeEmbedder{}
	e := NewExpander(completer, embedder, "test-model", 0)

	exp, err := e.Expand(context.Background(), "invoice")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(exp.Synonyms) != 1 || exp.Synonyms[0] != "invoice" {
		t.Fatalf("expected fallback to the bare query, got %v", exp.Synonyms)
	}
}

func TestExpanderExpandReturnsErrorOnEmbeddingFailure(t *testing.T) {
	completer := &fakeCompleter{response: `{"synonym_list":["bill"],"is_english":true,"translation_list":[]}`}
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	e := NewExpander(completer, embedder, "test-model", 0)

	if _, err := e.Expand(context.Background(), "invoice"); err == nil {
		t.Fatalf("expected an error when the embedding batch call fails")
	}
}

type fakeTranslator struct {
	calls int
}

func (f *fakeTranslator) Translate(ctx context.Context, text, dest string) (llm.Translation, error) {
	f.calls++
	return llm.Translation{Text: "translated " + text, Src: "fr", Dest: dest}, nil
}

func TestExpanderExpandTranslatorFallbackFillsTranslations(t *testing.T) {
	// The completion marks the query non-English but returns no
	// translations; the wired translator fills the gap from the synonyms.
	completer := &fakeCompleter{response: `{"synonym_list":["devis","estimation"],"is_english":false,"translation_list":[]}`}
	embedder := &fakeEmbedder{}
	translator := &fakeTranslator{}
	e := NewExpander(completer, embedder, "test-model", 0)
	e.UseTranslator(translator)

	exp, err := e.Expand(context.Background(), "facture")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(exp.Translations) != 3 {
		t.Fatalf("Translations = %v, want one per query+synonym", exp.Translations)
	}
	if translator.calls != 3 {
		t.Fatalf("expected one Translate call per term, got %d", translator.calls)
	}
	if len(exp.TranslationEmbeddings) != len(exp.Translations) {
		t.Fatalf("expected one embedding per translation")
	}
}

func TestExpanderExpandNoTranslatorLeavesTranslationsEmpty(t *testing.T) {
	completer := &fakeCompleter{response: `{"synonym_list":["devis"],"is_english":false,"translation_list":[]}`}
	e := NewExpander(completer, &fakeEmbedder{}, "test-model", 0)

	exp, err := e.Expand(context.Background(), "facture")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(exp.Translations) != 0 {
		t.Fatalf("expected no translations without a translator, got %v", exp.Translations)
	}
}

func TestExpanderExpandDedupsSynonymsAndDropsTheBareQueryEcho(t *testing.T) {
	completer := &fakeCompleter{response: `{"synonym_list":["invoice","invoice","bill"],"is_english":true,"translation_list":[]}`}
	embedder := &fakeEmbedder{}
	e := NewExpander(completer, embedder, "test-model", 0)

	exp, err := e.Expand(context.Background(), "invoice")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	seen := map[string]int{}
	for _, s := range exp.Synonyms {
		seen[s]++
	}
	for s, n := range seen {
		if n > 1 {
			t.Fatalf("synonym %q appeared %d times, want deduped", s, n)
		}
	}
}
