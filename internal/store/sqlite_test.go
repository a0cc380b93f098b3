package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testItem(documentKey, fileName, text string, vector []float32) *Item {
	return &Item{
		DocumentKey:     documentKey,
		ChunkIndex:      0,
		WorkspaceID:     "ws1",
		KnowledgeBaseID: "kb1",
		FileName:        fileName,
		URI:             "file://" + fileName,
		Type:            ItemTypeMD,
		ChunkType:       ChunkTypeText,
		TextNormalized:  text,
		TokenList:       tokensOf(text),
		Vector:          vector,
	}
}

func tokensOf(text string) []string {
	var tokens []string
	start := -1
	for i, r := range text {
		if r == ' ' {
			if start >= 0 {
				tokens = append(tokens, text[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

func TestNewSQLiteStoreCreatesSchema(t *testing.T) {
	s := newTestSQLiteStore(t)
	items, err := s.scopeItems(context.Background(), "ws1", "kb1")
	if err != nil {
		t.Fatalf("scopeItems on a fresh store: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected an empty items table, got %d rows", len(items))
	}
}

func TestPutAndPagedQueryLiteralMode(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testItem("doc1", "a.md", "the quarterly invoice report", nil)); err != nil {
		t.Fatalf("Put doc1: %v", err)
	}
	if err := s.Put(ctx, testItem("doc2", "b.md", "unrelated contents", nil)); err != nil {
		t.Fatalf("Put doc2: %v", err)
	}

	rows, err := s.PagedQuery(ctx, ScopeQuery{
		WorkspaceID: "ws1", KnowledgeBaseID: "kb1",
		AISearch: false, LiteralQuery: "invoice", PageSize: 10,
	})
	if err != nil {
		t.Fatalf("PagedQuery: %v", err)
	}
	if len(rows) != 1 || rows[0].Item.DocumentKey != "doc1" {
		t.Fatalf("expected exactly doc1 to match the literal substring, got %+v", rows)
	}
}

func TestPutUpsertsOnConflict(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testItem("doc1", "a.md", "first version", nil)); err != nil {
		t.Fatalf("Put (insert): %v", err)
	}
	if err := s.Put(ctx, testItem("doc1", "a.md", "second version", nil)); err != nil {
		t.Fatalf("Put (update): %v", err)
	}

	items, err := s.scopeItems(ctx, "ws1", "kb1")
	if err != nil {
		t.Fatalf("scopeItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the upsert to replace the row, got %d rows", len(items))
	}
	if items[0].TextNormalized != "second version" {
		t.Fatalf("TextNormalized = %q, want the updated text", items[0].TextNormalized)
	}
}

func TestPagedQueryAISearchKeywordMatch(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testItem("doc1", "a.md", "the quarterly invoice report", nil)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rows, err := s.PagedQuery(ctx, ScopeQuery{
		WorkspaceID: "ws1", KnowledgeBaseID: "kb1",
		AISearch:             true,
		KeywordTermsOriginal: []string{"invoice"},
		KeywordTerms:         []string{"invoice"},
		PageSize:             10,
	})
	if err != nil {
		t.Fatalf("PagedQuery: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a keyword match, got %d rows", len(rows))
	}
	if rows[0].HasCosine {
		t.Fatalf("a keyword-only match with no query embeddings must not report HasCosine")
	}
}

func TestPagedQueryAISearchEmbeddingAdmission(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	closeVec := []float32{1, 0, 0}
	far := []float32{0, 1, 0}
	if err := s.Put(ctx, testItem("near", "a.md", "no shared words here at all", closeVec)); err != nil {
		t.Fatalf("Put near: %v", err)
	}
	if err := s.Put(ctx, testItem("distant", "b.md", "also no shared words present", far)); err != nil {
		t.Fatalf("Put distant: %v", err)
	}

	rows, err := s.PagedQuery(ctx, ScopeQuery{
		WorkspaceID: "ws1", KnowledgeBaseID: "kb1",
		AISearch:           true,
		SentenceEmbeddings: [][]float32{{1, 0, 0}},
		PageSize:           10,
	})
	if err != nil {
		t.Fatalf("PagedQuery: %v", err)
	}
	if len(rows) != 1 || rows[0].Item.DocumentKey != "near" {
		t.Fatalf("expected only the cosine-close item to be admitted, got %+v", rows)
	}
	if !rows[0].HasCosine {
		t.Fatalf("expected HasCosine to be set for the embedding-admitted row")
	}
}

func TestPagedQueryWithAttachedVectorIndexUsesANN(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	vs, err := NewHNSWStore(DefaultVectorStoreConfig(3))
	if err != nil {
		t.Fatalf("NewHNSWStore: %v", err)
	}
	s.AttachVectorIndex(vs)

	closeVec := []float32{1, 0, 0}
	far := []float32{0, 1, 0}
	if err := s.Put(ctx, testItem("near", "a.md", "no shared words here at all", closeVec)); err != nil {
		t.Fatalf("Put near: %v", err)
	}
	if err := s.Put(ctx, testItem("distant", "b.md", "also no shared words present", far)); err != nil {
		t.Fatalf("Put distant: %v", err)
	}

	rows, err := s.PagedQuery(ctx, ScopeQuery{
		WorkspaceID: "ws1", KnowledgeBaseID: "kb1",
		AISearch:           true,
		SentenceEmbeddings: [][]float32{{1, 0, 0}},
		PageSize:           10,
	})
	if err != nil {
		t.Fatalf("PagedQuery: %v", err)
	}
	if len(rows) != 1 || rows[0].Item.DocumentKey != "near" {
		t.Fatalf("expected the ANN-backed admission to surface only the near item, got %+v", rows)
	}
}

func TestPagedQueryCursorExcludesAlreadySeenRows(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, name := range []string{"a.md", "b.md", "c.md"} {
		it := testItem(name, name, "invoice body", nil)
		it.DocumentKey = name
		it.ChunkIndex = i
		if err := s.Put(ctx, it); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}

	first, err := s.PagedQuery(ctx, ScopeQuery{
		WorkspaceID: "ws1", KnowledgeBaseID: "kb1",
		AISearch: false, LiteralQuery: "invoice", PageSize: 1,
	})
	if err != nil {
		t.Fatalf("PagedQuery (first page): %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected PageSize+1 rows for has_more detection, got %d", len(first))
	}
	cursor := SortKeyOf(first[0].Item)

	second, err := s.PagedQuery(ctx, ScopeQuery{
		WorkspaceID: "ws1", KnowledgeBaseID: "kb1",
		AISearch: false, LiteralQuery: "invoice", PageSize: 10,
		Cursor: &cursor,
	})
	if err != nil {
		t.Fatalf("PagedQuery (second page): %v", err)
	}
	for _, r := range second {
		if r.Item.DocumentKey == first[0].Item.DocumentKey {
			t.Fatalf("second page re-returned a row already emitted before the cursor")
		}
	}
}

func TestMatchesEvaluatesKeywordAndTranslationFallback(t *testing.T) {
	s := newTestSQLiteStore(t)
	it := testItem("doc1", "a.md", "bonjour le monde", nil)
	it.TranslationNormalized = "hello world"
	it.TranslationTokenList = []string{"hello", "world"}

	q := ScopeQuery{
		KeywordTermsOriginal: []string{"hello"},
		KeywordTerms:         []string{"hello"},
	}
	matches := s.Matches(it, q)
	if len(matches.KeywordOriginal) != 0 {
		t.Fatalf("expected no match against the original (untranslated) tokens")
	}
	if len(matches.KeywordTranslation) == 0 {
		t.Fatalf("expected the translation column to be searched when the original found nothing")
	}
}
