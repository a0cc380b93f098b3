package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/Aman-CERP/amanmcp/internal/fuzzy"
)

// VectorAdmissionK bounds how many nearest neighbors are pulled per
// query embedding from the attached HNSWStore when computing the
// embedding-only admission set. Larger values trade recall for
// per-query ANN search cost.
const VectorAdmissionK = 500

// SQLiteStore is the store adapter: a pure-Go SQLite table holding the
// full item schema, queried one page at a time. Fuzzy matching runs in
// the application tier rather than as a database stored procedure.
// When a vectors index is attached (see AttachVectorIndex),
// cosine-distance admission for the embedding-only path is served by it
// instead of a brute-force scan.
type SQLiteStore struct {
	db      *sql.DB
	vectors *HNSWStore
	lock    *FileLock
}

// NewSQLiteStore opens (creating if absent) a WAL-mode SQLite database
// at path and ensures the items table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: single writer

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, lock: NewFileLock(path)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// AttachVectorIndex wires v in as the ANN accelerator for
// cosine-distance admission and embedding-only ordering. Every item
// already present should be re-Put after attaching so the index is
// populated; new Puts are indexed automatically from then on.
func (s *SQLiteStore) AttachVectorIndex(v *HNSWStore) {
	s.vectors = v
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS items (
	document_key TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	workspace_id TEXT NOT NULL,
	knowledge_base_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	uri TEXT NOT NULL,
	type TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	page_number INTEGER,
	page_width REAL,
	page_height REAL,
	bbox_json TEXT,
	text_normalized TEXT NOT NULL,
	has_traditional_chinese INTEGER NOT NULL DEFAULT 0,
	token_list_json TEXT NOT NULL,
	token_start_json TEXT NOT NULL,
	token_end_json TEXT NOT NULL,
	translation_normalized TEXT NOT NULL DEFAULT '',
	translation_token_list_json TEXT NOT NULL DEFAULT '[]',
	translation_token_start_json TEXT NOT NULL DEFAULT '[]',
	translation_token_end_json TEXT NOT NULL DEFAULT '[]',
	vector_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (document_key, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_items_scope ON items (workspace_id, knowledge_base_id);
`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a single item. The search path never writes;
// this exists so search-path tests and the external ingestion pipeline
// have a single write path into the read-side schema. The write is
// guarded by an advisory cross-process file lock so a daemon and a CLI
// local-fallback invocation never interleave writes to the same
// metadata store.
func (s *SQLiteStore) Put(ctx context.Context, it *Item) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	bboxJSON, err := json.Marshal(it.BBox)
	if err != nil {
		return fmt.Errorf("marshal bbox: %w", err)
	}
	tokenListJSON, _ := json.Marshal(it.TokenList)
	tokenStartJSON, _ := json.Marshal(it.TokenStartIndexList)
	tokenEndJSON, _ := json.Marshal(it.TokenEndIndexList)
	transListJSON, _ := json.Marshal(it.TranslationTokenList)
	transStartJSON, _ := json.Marshal(it.TranslationTokenStartIndex)
	transEndJSON, _ := json.Marshal(it.TranslationTokenEndIndex)
	vectorJSON, _ := json.Marshal(it.Vector)

	_, err = s.db.ExecContext(ctx, `
INSERT INTO items (
	document_key, chunk_index, workspace_id, knowledge_base_id, file_name, uri,
	type, chunk_type, page_number, page_width, page_height, bbox_json,
	text_normalized, has_traditional_chinese,
	token_list_json, token_start_json, token_end_json,
	translation_normalized, translation_token_list_json, translation_token_start_json, translation_token_end_json,
	vector_json
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (document_key, chunk_index) DO UPDATE SET
	workspace_id=excluded.workspace_id, knowledge_base_id=excluded.knowledge_base_id,
	file_name=excluded.file_name, uri=excluded.uri, type=excluded.type, chunk_type=excluded.chunk_type,
	page_number=excluded.page_number, page_width=excluded.page_width, page_height=excluded.page_height,
	bbox_json=excluded.bbox_json, text_normalized=excluded.text_normalized,
	has_traditional_chinese=excluded.has_traditional_chinese,
	token_list_json=excluded.token_list_json, token_start_json=excluded.token_start_json, token_end_json=excluded.token_end_json,
	translation_normalized=excluded.translation_normalized,
	translation_token_list_json=excluded.translation_token_list_json,
	translation_token_start_json=excluded.translation_token_start_json,
	translation_token_end_json=excluded.translation_token_end_json,
	vector_json=excluded.vector_json
`,
		it.DocumentKey, it.ChunkIndex, it.WorkspaceID, it.KnowledgeBaseID, it.FileName, it.URI,
		string(it.Type), string(it.ChunkType), it.PageNumber, it.PageWidth, it.PageHeight, string(bboxJSON),
		it.TextNormalized, boolToInt(it.HasTraditionalChinese),
		string(tokenListJSON), string(tokenStartJSON), string(tokenEndJSON),
		it.TranslationNormalized, string(transListJSON), string(transStartJSON), string(transEndJSON),
		string(vectorJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert item %s#%d: %w", it.DocumentKey, it.ChunkIndex, err)
	}

	if s.vectors != nil && len(it.Vector) > 0 {
		if err := s.vectors.Add(ctx, it.DocumentKey, it.ChunkIndex, it.Vector); err != nil {
			return fmt.Errorf("index vector for %s#%d: %w", it.DocumentKey, it.ChunkIndex, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanItem reads one row into an Item.
func scanItem(rows *sql.Rows) (*Item, error) {
	var (
		it                                          Item
		typ, chunkType, bboxJSON                    string
		pageNumber                                  sql.NullInt64
		pageWidth, pageHeight                       sql.NullFloat64
		hasTraditional                              int
		tokenListJSON, tokenStartJSON, tokenEndJSON string
		transListJSON, transStartJSON, transEndJSON string
		vectorJSON                                  string
	)
	if err := rows.Scan(
		&it.DocumentKey, &it.ChunkIndex, &it.WorkspaceID, &it.KnowledgeBaseID, &it.FileName, &it.URI,
		&typ, &chunkType, &pageNumber, &pageWidth, &pageHeight, &bboxJSON,
		&it.TextNormalized, &hasTraditional,
		&tokenListJSON, &tokenStartJSON, &tokenEndJSON,
		&it.TranslationNormalized, &transListJSON, &transStartJSON, &transEndJSON,
		&vectorJSON,
	); err != nil {
		return nil, err
	}

	it.Type = ItemType(typ)
	it.ChunkType = ChunkType(chunkType)
	it.HasTraditionalChinese = hasTraditional != 0
	if pageNumber.Valid {
		v := int(pageNumber.Int64)
		it.PageNumber = &v
	}
	if pageWidth.Valid {
		v := pageWidth.Float64
		it.PageWidth = &v
	}
	if pageHeight.Valid {
		v := pageHeight.Float64
		it.PageHeight = &v
	}
	var bbox BBox
	if bboxJSON != "" && bboxJSON != "null" {
		if err := json.Unmarshal([]byte(bboxJSON), &bbox); err != nil {
			return nil, fmt.Errorf("unmarshal bbox: %w", err)
		}
		it.BBox = &bbox
	}
	if err := json.Unmarshal([]byte(tokenListJSON), &it.TokenList); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tokenStartJSON), &it.TokenStartIndexList); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tokenEndJSON), &it.TokenEndIndexList); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transListJSON), &it.TranslationTokenList); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transStartJSON), &it.TranslationTokenStartIndex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transEndJSON), &it.TranslationTokenEndIndex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vectorJSON), &it.Vector); err != nil {
		return nil, err
	}
	return &it, nil
}

const selectColumns = `
	document_key, chunk_index, workspace_id, knowledge_base_id, file_name, uri,
	type, chunk_type, page_number, page_width, page_height, bbox_json,
	text_normalized, has_traditional_chinese,
	token_list_json, token_start_json, token_end_json,
	translation_normalized, translation_token_list_json, translation_token_start_json, translation_token_end_json,
	vector_json
`

// scopeItems loads every item in (workspace_id, knowledge_base_id)
// scope. The hybrid admission rule and the 8-tuple order are evaluated
// in the application tier; this is the single per-page scan that feeds
// them.
func (s *SQLiteStore) scopeItems(ctx context.Context, workspaceID, kbID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM items WHERE workspace_id = ? AND knowledge_base_id = ?", workspaceID, kbID)
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("decode item row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Matches evaluates the fuzzy matcher for a single item. The
// translation column is evaluated only when the original column found
// no match and a translation exists to search.
func (s *SQLiteStore) Matches(item *Item, q ScopeQuery) FuzzyMatchSets {
	var out FuzzyMatchSets

	out.KeywordOriginal = fuzzy.MatchKeywordIndices(item.TokenList, q.KeywordTermsOriginal)
	if len(out.KeywordOriginal) == 0 && len(q.KeywordTerms) > 0 && len(item.TranslationTokenList) > 0 {
		out.KeywordTranslation = fuzzy.MatchKeywordIndices(item.TranslationTokenList, q.KeywordTerms)
	}

	if spans := fuzzy.MatchSentenceSpans(item.TextNormalized, q.SentenceTermsOriginal); len(spans) > 0 {
		out.SentenceOriginal = toFuzzySpans(spans)
	}
	if len(out.SentenceOriginal) == 0 && len(q.SentenceTerms) > 0 && item.TranslationNormalized != "" {
		if spans := fuzzy.MatchSentenceSpans(item.TranslationNormalized, q.SentenceTerms); len(spans) > 0 {
			out.SentenceTranslation = toFuzzySpans(spans)
		}
	}
	return out
}

func toFuzzySpans(spans []fuzzy.Span) []fuzzySpan {
	out := make([]fuzzySpan, len(spans))
	for i, sp := range spans {
		out[i] = fuzzySpan{Start: sp.Start, End: sp.End}
	}
	return out
}

// annCosineDistances queries the attached HNSWStore (if any) for the
// nearest VectorAdmissionK neighbors of each query embedding and
// collapses them to one best distance per item key, matching the
// "minimum distance across all query embeddings" rule the brute-force
// path applies. Returns nil when no vectors index is attached, signaling
// the caller to fall back to a full scan.
func (s *SQLiteStore) annCosineDistances(ctx context.Context, embeddings [][]float32) map[string]float64 {
	if s.vectors == nil || len(embeddings) == 0 {
		return nil
	}
	best := make(map[string]float64)
	for _, emb := range embeddings {
		results, err := s.vectors.Search(ctx, emb, VectorAdmissionK)
		if err != nil {
			continue
		}
		for _, r := range results {
			key := itemKey(r.DocumentKey, r.ChunkIndex)
			d64 := float64(r.Distance)
			if d, ok := best[key]; !ok || d64 < d {
				best[key] = d64
			}
		}
	}
	return best
}

// PagedQuery runs one page of the hybrid query: admission by fuzzy
// match or cosine distance, canonical ordering, keyset cursor, and the
// page limit with one extra row for has_more detection.
func (s *SQLiteStore) PagedQuery(ctx context.Context, q ScopeQuery) ([]*Row, error) {
	items, err := s.scopeItems(ctx, q.WorkspaceID, q.KnowledgeBaseID)
	if err != nil {
		return nil, err
	}

	var rows []*Row
	if !q.AISearch {
		literal := strings.ToLower(q.LiteralQuery)
		for _, it := range items {
			if literal == "" || strings.Contains(strings.ToLower(it.TextNormalized), literal) {
				rows = append(rows, &Row{Item: it})
			}
		}
	} else {
		annDistances := s.annCosineDistances(ctx, q.SentenceEmbeddings)

		for _, it := range items {
			matches := s.Matches(it, q)
			hasMatch := len(matches.KeywordOriginal) > 0 || len(matches.KeywordTranslation) > 0 ||
				len(matches.SentenceOriginal) > 0 || len(matches.SentenceTranslation) > 0

			dist := math.Inf(1)
			hasCosine := false
			if len(q.SentenceEmbeddings) > 0 {
				if annDistances != nil {
					// Attached index: admission is scored only for items
					// the ANN search actually surfaced as a near neighbor
					// of some query embedding.
					if d, ok := annDistances[itemKey(it.DocumentKey, it.ChunkIndex)]; ok {
						dist, hasCosine = d, true
					}
				} else if len(it.Vector) > 0 {
					hasCosine = true
					for _, emb := range q.SentenceEmbeddings {
						d := CosineDistance(it.Vector, emb)
						if d < dist {
							dist = d
						}
					}
				}
			}

			if hasMatch || (hasCosine && dist < 0.4) {
				rows = append(rows, &Row{Item: it, CosineDistance: dist, HasCosine: hasCosine})
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return SortKeyOf(rows[i].Item).Less(SortKeyOf(rows[j].Item))
	})

	if q.Cursor != nil {
		filtered := rows[:0]
		for _, r := range rows {
			if SortKeyOf(r.Item).Greater(*q.Cursor) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	limit := q.PageSize + 1
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
