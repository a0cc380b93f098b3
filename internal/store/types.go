// Package store provides the read-side persistence layer for the
// cross-language search engine: the per-tenant item table (SQLite,
// WAL-mode, pure-Go driver) and the vector index (HNSW) used for
// cosine-distance admission and ordering.
package store

import (
	"context"
	"fmt"
)

// ErrDimensionMismatch indicates a vector whose dimension does not match
// the configured global embedding dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ItemType is the source document's container format.
type ItemType string

const (
	ItemTypePDF   ItemType = "pdf"
	ItemTypeImage ItemType = "image"
	ItemTypeMD    ItemType = "md"
	ItemTypeTxt   ItemType = "txt"
	ItemTypeXLSX  ItemType = "xlsx"
)

// ChunkType is the structural role of a chunk within its document.
type ChunkType string

const (
	ChunkTypeText       ChunkType = "text"
	ChunkTypeList       ChunkType = "list"
	ChunkTypeTable      ChunkType = "table"
	ChunkTypeExcelSheet ChunkType = "excel_sheet"
)

// BBox is the generic ordered 4-tuple bbox[1]..bbox[4] used by the
// canonical sort and highlight projection. Its semantics depend on
// ItemType:
//
//	pdf/image:    B1=x1, B2=y1, B3=x2, B4=y2 (page coordinates, y grows down)
//	md/txt:       B1=from_idx, B2=to_idx, B3/B4 unset
//	xlsx:         B1=col, B2=row, B3/B4 unset
//
// Any field may be nil, matching the nullable bbox columns; callers
// coalesce to -1.
type BBox struct {
	B1, B2, B3, B4 *float64
}

func bboxAt(b *BBox, n int) (float64, bool) {
	if b == nil {
		return 0, false
	}
	var p *float64
	switch n {
	case 1:
		p = b.B1
	case 2:
		p = b.B2
	case 3:
		p = b.B3
	case 4:
		p = b.B4
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Coalesce returns bbox[n] or fallback when unset.
func (b *BBox) Coalesce(n int, fallback float64) float64 {
	if v, ok := bboxAt(b, n); ok {
		return v
	}
	return fallback
}

// Item is the unit of search: a pre-ingested, pre-tokenized document
// chunk plus its embedding. The search core is a pure reader of Items
// and must never mutate them.
type Item struct {
	DocumentKey string
	ChunkIndex  int

	WorkspaceID     string
	KnowledgeBaseID string

	FileName  string
	URI       string
	Type      ItemType
	ChunkType ChunkType

	PageNumber            *int
	PageWidth, PageHeight *float64
	BBox                  *BBox

	TextNormalized        string
	HasTraditionalChinese bool
	TokenList             []string
	TokenStartIndexList   []int
	TokenEndIndexList     []int

	TranslationNormalized      string
	TranslationTokenList       []string
	TranslationTokenStartIndex []int
	TranslationTokenEndIndex   []int

	// Vector is the half-precision embedding of TextNormalized. Unit
	// length is not guaranteed; consumers always use cosine distance.
	Vector []float32
}

// ID returns the (document_key, chunk_index) identity pair used as the
// keyset cursor's row identity and for duplicate detection.
func (it *Item) ID() (string, int) {
	return it.DocumentKey, it.ChunkIndex
}

// FuzzyMatchSets is what the fuzzy matcher returns for a single row:
// matched token indices for keyword search and
// character spans for sentence search, for both the original and
// translation columns. A nil slice means "no match" for that column.
type FuzzyMatchSets struct {
	KeywordOriginal     []int
	KeywordTranslation  []int
	SentenceOriginal    []fuzzySpan
	SentenceTranslation []fuzzySpan
}

// fuzzySpan avoids importing internal/fuzzy into this package's public
// surface; sqlite.go converts to/from fuzzy.Span at the boundary.
type fuzzySpan struct {
	Start, End int
}

// Row is a single scan result from the paged hybrid query: the item
// plus the admission evidence the fuzzy matcher and vector distance
// computed for it.
type Row struct {
	Item           *Item
	CosineDistance float64 // min over sentence/query embeddings; +Inf if no embeddings given
	HasCosine      bool
}

// ScopeQuery selects the tenant scope and search terms for a single
// paged hybrid query.
type ScopeQuery struct {
	WorkspaceID     string
	KnowledgeBaseID string

	// AISearch selects the fuzzy+vector hybrid path. When false, the
	// adapter instead applies a case-insensitive substring filter.
	AISearch bool

	KeywordTermsOriginal  []string
	KeywordTerms          []string
	SentenceTermsOriginal []string
	SentenceTerms         []string

	// SentenceEmbeddings are used to compute cosine_distance =
	// min_i cosine_distance(item.Vector, SentenceEmbeddings[i]).
	SentenceEmbeddings [][]float32

	// LiteralQuery is used only when AISearch is false.
	LiteralQuery string

	PageSize int
	Cursor   *Cursor
}

// Store is the read-side contract the search engine needs from the
// persistence layer: a single paginated query combining the fuzzy
// matcher and the vector cosine-distance filter.
type Store interface {
	// PagedQuery returns up to q.PageSize+1 rows in canonical order,
	// already filtered to the tenant scope and admission rule. The
	// caller drops the extra row and uses it only to compute has_more.
	PagedQuery(ctx context.Context, q ScopeQuery) ([]*Row, error)

	// Matches evaluates the fuzzy matcher for a single item against the
	// given keyword/sentence term lists.
	Matches(item *Item, q ScopeQuery) FuzzyMatchSets

	Close() error
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	DocumentKey string
	ChunkIndex  int
	Distance    float32
}

// VectorStoreConfig configures the HNSW vector index.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore indexes item vectors for nearest-neighbor cosine-distance
// search, keyed by (document_key, chunk_index).
type VectorStore interface {
	Add(ctx context.Context, documentKey string, chunkIndex int, vector []float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, documentKey string, chunkIndex int) error
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}
