package search

import (
	"context"
	"errors"
	"testing"

	"github.com/Aman-CERP/amanmcp/internal/fuzzy"
)

// vectorEmbedder returns a fixed embedding per input text looked up from a
// map, so tests can control cosine similarity precisely.
type vectorEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (v *vectorEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := v.vectors[t]
		if !ok {
			vec = []float32{0, 0}
		}
		out[i] = vec
	}
	return out, nil
}

func TestRevalidateKeywordKeepsOnlySimilarMatches(t *testing.T) {
	rv := &revalidator{embedder: &vectorEmbedder{vectors: map[string][]float32{
		"invoice": {1, 0},
		"banana":  {0, 1},
	}}}
	queryEmbeddings := [][]float32{{1, 0}}

	kept := rv.revalidateKeyword(context.Background(), []string{"invoice", "banana"}, []int{0, 1}, queryEmbeddings)

	if len(kept) != 1 || kept[0] != 0 {
		t.Fatalf("kept = %v, want only index 0 (invoice, cosine similarity 1.0)", kept)
	}
}

func TestRevalidateKeywordEmptyIndexReturnsNil(t *testing.T) {
	rv := &revalidator{embedder: &vectorEmbedder{}}
	if kept := rv.revalidateKeyword(context.Background(), []string{"invoice"}, nil, nil); kept != nil {
		t.Fatalf("expected nil, got %v", kept)
	}
}

func TestRevalidateKeywordFailsOpenOnEmbeddingError(t *testing.T) {
	rv := &revalidator{embedder: &vectorEmbedder{err: errors.New("embedding service down")}}
	idx := []int{0, 1}

	kept := rv.revalidateKeyword(context.Background(), []string{"invoice", "banana"}, idx, [][]float32{{1, 0}})

	if len(kept) != len(idx) {
		t.Fatalf("expected fail-open to keep every unvalidated candidate, got %v", kept)
	}
}

func TestRevalidateSentenceKeepsOnlySimilarSpans(t *testing.T) {
	text := "the quarterly invoice totals"
	rv := &revalidator{embedder: &vectorEmbedder{vectors: map[string][]float32{
		"quarterly invoice": {1, 0},
		"totals":            {0, 1},
	}}}
	spans := []fuzzy.Span{
		{Start: 4, End: 21},  // "quarterly invoice"
		{Start: 22, End: 28}, // "totals"
	}

	kept := rv.revalidateSentence(context.Background(), text, spans, [][]float32{{1, 0}})

	if len(kept) != 1 || kept[0] != spans[0] {
		t.Fatalf("kept = %v, want only the first span", kept)
	}
}

func TestFilterBySimilarityNoQueryEmbeddingsKeepsEverything(t *testing.T) {
	rv := &revalidator{embedder: &vectorEmbedder{}}
	keep, err := rv.filterBySimilarity(context.Background(), []string{"invoice"}, nil)
	if err != nil {
		t.Fatalf("filterBySimilarity: %v", err)
	}
	if len(keep) != 1 || !keep[0] {
		t.Fatalf("expected no query embeddings (literal search) to keep every candidate unvalidated, got %v", keep)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Fatalf("identical unit vectors = %v, want 1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors = %v, want 0", got)
	}
	if got := cosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("mismatched lengths = %v, want 0", got)
	}
}
