// Package search implements the cross-language search engine: query
// expansion, classification into keyword/sentence buckets, the fuzzy +
// vector hybrid retrieval pipeline, similarity re-validation, snippet
// highlighting, and the lazy keyset-paginated result stream.
package search

import (
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// Request is the search entry point's argument tuple.
type Request struct {
	WorkspaceID     string
	KnowledgeBaseID string
	SearchContent   string

	// AISearch selects the fuzzy+vector hybrid path; false falls back to
	// a literal substring search.
	AISearch bool

	// PageSize is KNOWLEDGE_BASE_SEARCH_BATCH_SIZE when zero.
	PageSize int

	// PageDelta bounds how many pages the stream emits before stopping,
	// even if more rows remain. Zero means "one page".
	PageDelta int

	// Cursor resumes from the last row of a previous page-delta request.
	Cursor *store.Cursor
}

// Highlight is the type-specific position projection emitted with every
// hit: page coordinates for pdf/image, a character range for md/txt, a
// cell address for spreadsheets.
type Highlight struct {
	X1, Y1, X2, Y2        float64
	PageNumber            int
	PageWidth, PageHeight float64
	FromIdx, ToIdx        int
	Col, Row              int
}

// Hit is a single emitted search result.
type Hit struct {
	Markdown  string
	ID        string
	ChunkIdx  int
	FileURL   string
	Type      string
	FileName  string
	Highlight Highlight

	// HasMore is set on the last hit of the last page of a page-delta
	// request when further rows remain.
	HasMore bool
	// Cursor is the SortKey of this hit's row, except on the hit that
	// carries HasMore, where it is the SortKey of the page's last store
	// row (rows the assembler dropped included) and is usable as the next
	// request's Cursor.
	Cursor store.Cursor
}

// PageBatch is one page of hits, in the order they must be presented.
type PageBatch []Hit

// SearchExpansion is the query expander's output. It is request-scoped,
// never persisted.
type SearchExpansion struct {
	Synonyms              []string
	SynonymEmbeddings     [][]float32
	IsEnglish             bool
	Translations          []string
	TranslationEmbeddings [][]float32
}

// classification is the search classifier's per-bucket output:
// original-language or target-language terms split into single-token
// (keyword) and multi-token (sentence) buckets, with embeddings
// following their strings into the matching bucket.
type classification struct {
	KeywordTerms       []string
	KeywordEmbeddings  [][]float32
	SentenceTerms      []string
	SentenceEmbeddings [][]float32
}
