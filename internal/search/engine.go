package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/llm"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// DefaultPageSize is KNOWLEDGE_BASE_SEARCH_BATCH_SIZE's fallback.
const DefaultPageSize = 10000

// Engine is the cross-language search entry point: it wires the query
// expander, classifier, store adapter, highlight builder, and result
// assembler into a lazy, cancelable page stream.
type Engine struct {
	store       store.Store
	expander    *Expander
	assembler   *assembler
	defaultPage int
	retry       errors.RetryConfig
	log         *slog.Logger
}

// NewEngine constructs an Engine. logger may be nil, in which case
// slog.Default() is used.
func NewEngine(st store.Store, completer llm.Completer, embedder llm.Embedder, model string, expanderCacheSize int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       st,
		expander:    NewExpander(completer, embedder, model, expanderCacheSize),
		assembler:   newAssembler(st, &revalidator{embedder: embedder}),
		defaultPage: DefaultPageSize,
		retry:       errors.DefaultRetryConfig(),
		log:         logger,
	}
}

// SetDefaultPageSize overrides the page size used when a request leaves
// PageSize unset (KNOWLEDGE_BASE_SEARCH_BATCH_SIZE).
func (e *Engine) SetDefaultPageSize(n int) {
	if n > 0 {
		e.defaultPage = n
	}
}

// SetRetryConfig overrides the retry/backoff policy applied to store
// queries.
func (e *Engine) SetRetryConfig(cfg errors.RetryConfig) {
	e.retry = cfg
}

// SetTranslator wires an optional translation service into the query
// expander (see Expander.UseTranslator).
func (e *Engine) SetTranslator(t llm.Translator) {
	e.expander.UseTranslator(t)
}

// Search validates req, then streams PageBatches on the returned channel
// until req.PageDelta pages have been emitted, the store runs dry, or
// ctx is canceled. Any error
// (InvalidRequest, EmbeddingFailed from the expansion's embedding batch,
// or a store error that exhausted its retries) is sent once on the error
// channel and both channels are closed. A ctx canceled while a page is
// waiting to be received closes both channels without an error; a ctx
// canceled during expansion or a store query is reported as that step's
// error (the context's error for a store query).
func (e *Engine) Search(ctx context.Context, req Request) (<-chan PageBatch, <-chan error) {
	pages := make(chan PageBatch)
	errs := make(chan error, 1)

	go func() {
		defer close(pages)
		defer close(errs)

		if err := validate(req); err != nil {
			errs <- err
			return
		}

		pageSize := req.PageSize
		if pageSize <= 0 {
			pageSize = e.defaultPage
		}
		pageDelta := req.PageDelta
		if pageDelta <= 0 {
			pageDelta = 1
		}

		scope, queryEmbeddings, err := e.buildScope(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		e.log.Debug("search_scope_built",
			slog.Int("keyword_terms", len(scope.KeywordTerms)),
			slog.Int("sentence_terms", len(scope.SentenceTerms)),
			slog.Bool("ai_search", req.AISearch))

		cursor := req.Cursor
		for emitted := 0; emitted < pageDelta; {
			scope.Cursor = cursor
			scope.PageSize = pageSize

			rows, err := e.queryWithRetry(ctx, scope)
			if err != nil {
				errs <- err
				return
			}

			hasMore := len(rows) > pageSize
			if hasMore {
				rows = rows[:pageSize]
			}
			if len(rows) == 0 {
				return
			}

			// The cursor advances past every row of the page in store
			// order, including rows the assembler drops, so no row is
			// ever re-fetched or skipped on the next page. The batch's
			// own order (embedding-only hits re-sorted by distance) must
			// not leak into the cursor.
			pageLastKey := store.SortKeyOf(rows[len(rows)-1].Item)
			cursor = &pageLastKey

			batch := e.assemblePage(ctx, rows, scope, queryEmbeddings)
			if len(batch) == 0 {
				if !hasMore {
					return
				}
				continue
			}
			if hasMore {
				last := &batch[len(batch)-1]
				last.HasMore = true
				last.Cursor = pageLastKey
			}
			emitted++
			e.log.Debug("search_page_assembled",
				slog.Int("rows", len(rows)),
				slog.Int("hits", len(batch)),
				slog.Bool("has_more", hasMore))

			select {
			case pages <- batch:
			case <-ctx.Done():
				return
			}

			if !hasMore {
				return
			}
		}
	}()

	return pages, errs
}

func validate(req Request) error {
	if req.WorkspaceID == "" || req.KnowledgeBaseID == "" {
		return errors.InvalidRequest("workspace_id and knowledge_base_id are required")
	}
	if req.SearchContent == "" {
		return errors.InvalidRequest("search_content must not be empty")
	}
	return nil
}

// buildScope runs the query expander and classifier and returns the
// resulting store.ScopeQuery template (Cursor and PageSize still unset)
// plus the full set of expansion-query embeddings used later for
// re-validation.
func (e *Engine) buildScope(ctx context.Context, req Request) (store.ScopeQuery, [][]float32, error) {
	scope := store.ScopeQuery{
		WorkspaceID:     req.WorkspaceID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		AISearch:        req.AISearch,
		LiteralQuery:    req.SearchContent,
	}
	if !req.AISearch {
		return scope, nil, nil
	}

	exp, err := e.expander.Expand(ctx, req.SearchContent)
	if err != nil {
		return store.ScopeQuery{}, nil, err
	}

	original, target := classifyExpansion(exp)
	scope.KeywordTermsOriginal = original.KeywordTerms
	scope.SentenceTermsOriginal = original.SentenceTerms
	scope.KeywordTerms = target.KeywordTerms
	scope.SentenceTerms = target.SentenceTerms

	// The cosine-distance gate runs only against sentence-bucket
	// embeddings; keyword-bucket (single-token) embeddings stay out of
	// it. When the target bucket is just the original again (English
	// query or no translations), it contributes nothing new.
	sentenceEmbeddings := make([][]float32, 0, len(original.SentenceEmbeddings)+len(target.SentenceEmbeddings))
	sentenceEmbeddings = append(sentenceEmbeddings, original.SentenceEmbeddings...)
	if !exp.IsEnglish && len(exp.Translations) > 0 {
		sentenceEmbeddings = append(sentenceEmbeddings, target.SentenceEmbeddings...)
	}
	scope.SentenceEmbeddings = sentenceEmbeddings

	// Re-validation compares candidate matches against every expanded
	// query embedding, keyword and sentence buckets alike.
	queryEmbeddings := make([][]float32, 0, len(exp.SynonymEmbeddings)+len(exp.TranslationEmbeddings))
	queryEmbeddings = append(queryEmbeddings, exp.SynonymEmbeddings...)
	queryEmbeddings = append(queryEmbeddings, exp.TranslationEmbeddings...)

	return scope, queryEmbeddings, nil
}

// queryWithRetry wraps the store's paged query with the global retry/
// backoff policy: StoreUnavailable is retried with exponential backoff
// up to the configured max before being surfaced.
func (e *Engine) queryWithRetry(ctx context.Context, scope store.ScopeQuery) ([]*store.Row, error) {
	rows, err := errors.RetryWithResult(ctx, e.retry, func() ([]*store.Row, error) {
		rows, err := e.store.PagedQuery(ctx, scope)
		if err != nil {
			return nil, errors.StoreUnavailable("paged query failed", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// assemblePage orders one page's hits: exact matches in store order,
// followed by embedding-only matches sorted by ascending cosine
// distance.
func (e *Engine) assemblePage(ctx context.Context, rows []*store.Row, scope store.ScopeQuery, queryEmbeddings [][]float32) PageBatch {
	var exact []Hit
	var embeddingOnly []assembled

	for _, row := range rows {
		result, ok := e.assembler.assembleRow(ctx, row, scope, queryEmbeddings)
		if !ok {
			continue
		}
		if result.IsExact {
			exact = append(exact, result.Hit)
		} else {
			embeddingOnly = append(embeddingOnly, result)
		}
	}

	sort.SliceStable(embeddingOnly, func(i, j int) bool {
		return embeddingOnly[i].Distance < embeddingOnly[j].Distance
	})

	batch := make(PageBatch, 0, len(exact)+len(embeddingOnly))
	batch = append(batch, exact...)
	for _, r := range embeddingOnly {
		batch = append(batch, r.Hit)
	}
	return batch
}
