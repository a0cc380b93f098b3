package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/llm"
	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/output"
	"github.com/Aman-CERP/amanmcp/internal/ratelimit"
	"github.com/Aman-CERP/amanmcp/internal/search"
	"github.com/Aman-CERP/amanmcp/internal/searchd"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	dbPath   string
	wsID     string
	kbID     string
	noAI     bool
	pageSize int
	pages    int
	format   string // "text", "json"
	local    bool   // bypass searchd, run the Engine in-process
	socket   string // override the default daemon socket path
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run cross-language hybrid search over a knowledge base",
		Long: `search runs the cross_language_search entry point (query
expansion, fuzzy keyword/sentence matching, vector cosine-distance
admission, canonical-order assembly) against an existing metadata
store.

Examples:
  amanmcp search --db ./metadata.db --workspace w1 --kb kb1 "onboarding steps"
  amanmcp search --db ./metadata.db --workspace w1 --kb kb1 --no-ai "exact phrase"
  amanmcp search --db ./metadata.db --workspace w1 --kb kb1 --format json "refund policy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Path to the SQLite metadata store (required)")
	cmd.Flags().StringVar(&opts.wsID, "workspace", "", "Workspace ID to scope the search to (required)")
	cmd.Flags().StringVar(&opts.kbID, "kb", "", "Knowledge base ID to scope the search to (required)")
	cmd.Flags().BoolVar(&opts.noAI, "no-ai", false, "Use literal substring search instead of the fuzzy+vector hybrid path")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Rows per page (defaults to KNOWLEDGE_BASE_SEARCH_BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.pages, "pages", 1, "Number of pages to fetch before stopping")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Run search in-process, bypassing searchd")
	cmd.Flags().StringVar(&opts.socket, "socket", "", "Override the searchd Unix socket path")

	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	out := output.New(cmd.OutOrStdout())
	req := search.Request{
		WorkspaceID:     opts.wsID,
		KnowledgeBaseID: opts.kbID,
		SearchContent:   query,
		AISearch:        !opts.noAI,
		PageSize:        opts.pageSize,
		PageDelta:       opts.pages,
	}

	daemonCfg := searchd.DefaultConfig()
	if opts.socket != "" {
		daemonCfg.SocketPath = opts.socket
	}
	client := searchd.NewClient(daemonCfg)

	if !opts.local && client.Available(ctx) {
		slog.Info("search_using_daemon", slog.String("query", query))
		result, err := client.Search(ctx, req)
		if err != nil {
			slog.Warn("daemon search failed, falling back to local", slog.String("error", err.Error()))
		} else {
			return formatHits(cmd, out, query, result.Hits, opts.format)
		}
	}

	slog.Info("search_using_local", slog.String("query", query))
	hits, err := runLocalSearch(ctx, opts, req)
	if err != nil {
		return err
	}
	return formatHits(cmd, out, query, hits, opts.format)
}

// runLocalSearch builds an Engine directly against the configured
// metadata store and LLM endpoints, for use when no searchd is
// reachable.
func runLocalSearch(ctx context.Context, opts searchOptions, req search.Request) ([]search.Hit, error) {
	engine, closeEngine, err := buildEngine(ctx, opts.dbPath, req.AISearch)
	if err != nil {
		return nil, err
	}
	defer closeEngine()

	pages, errs := engine.Search(ctx, req)
	var hits []search.Hit
	for pages != nil || errs != nil {
		select {
		case batch, ok := <-pages:
			if !ok {
				pages = nil
				continue
			}
			hits = append(hits, batch...)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return hits, nil
}

// buildEngine opens the metadata store at dbPath, attaches its sibling
// HNSW vector index when attachVectors is requested, and wires an
// in-process Engine against the configured LLM endpoints. The returned
// closer releases the store and vector index; callers must invoke it
// before returning.
func buildEngine(ctx context.Context, dbPath string, attachVectors bool) (*search.Engine, func(), error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("metadata store not found at %s: %w", dbPath, err)
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	cfg := config.Load()
	closers := []func(){func() { _ = st.Close() }}

	if attachVectors {
		if vec, err := attachVectorIndex(ctx, st, dbPath, cfg); err != nil {
			slog.Debug("vector index unavailable, falling back to brute-force admission", slog.String("error", err.Error()))
		} else if vec != nil {
			closers = append(closers, func() { _ = vec.Close() })
		}
	}

	limiter := ratelimit.New(cfg.RateLimits)
	client := llm.New(llm.Config{
		ChatEndpoint:      cfg.Endpoints.LLMEndpoint,
		ChatModel:         cfg.Endpoints.LLMModel,
		EmbeddingEndpoint: cfg.Endpoints.EmbeddingEndpoint,
		EmbeddingModel:    cfg.Endpoints.EmbeddingModel,
		RerankEndpoint:    cfg.Endpoints.RerankerEndpoint,
		RerankModel:       cfg.Endpoints.RerankerModel,
		TranslateEndpoint: cfg.Endpoints.TranslatorEndpoint,
		Timeout:           10 * time.Second,
		Limiter:           limiter,
	})

	engine := search.NewEngine(st, client, client, cfg.Endpoints.LLMModel, 256, slog.Default())
	engine.SetDefaultPageSize(cfg.SearchBatchSize)
	engine.SetRetryConfig(errors.RetryConfig{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.BaseDelay,
		MaxDelay:     16 * cfg.Retry.BaseDelay,
		Multiplier:   2,
	})
	if cfg.Endpoints.TranslatorEndpoint != "" {
		engine.SetTranslator(client)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return engine, closeAll, nil
}

// attachVectorIndex loads the HNSW vector index sitting alongside the
// metadata store (same base name, .hnsw extension) and wires it into st
// as the ANN accelerator for cosine-distance admission, pre-populating
// it by re-Put-ing nothing: the index file is expected to already carry
// every item's vector, written by the ingestion pipeline that is out of
// scope for this module.
func attachVectorIndex(ctx context.Context, st *store.SQLiteStore, dbPath string, cfg config.Config) (*store.HNSWStore, error) {
	vecPath := strings.TrimSuffix(dbPath, filepath.Ext(dbPath)) + ".hnsw"
	if _, err := os.Stat(vecPath); err != nil {
		return nil, err
	}

	vecCfg := store.DefaultVectorStoreConfig(cfg.EmbeddingDimension)
	vec, err := store.NewHNSWStore(vecCfg)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := vec.Load(vecPath); err != nil {
		_ = vec.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	st.AttachVectorIndex(vec)
	_ = ctx
	return vec, nil
}

// formatHits renders hits as text or JSON per opts.format.
func formatHits(cmd *cobra.Command, out *output.Writer, query string, hits []search.Hit, format string) error {
	if len(hits) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	out.Statusf("", "Found %d results for %q:", len(hits), query)
	out.Newline()
	for i, h := range hits {
		location := h.FileName
		if h.Highlight.PageNumber > 0 {
			location = fmt.Sprintf("%s (page %d)", h.FileName, h.Highlight.PageNumber)
		}
		out.Statusf("", "%d. %s [%s]", i+1, location, h.Type)
		for _, line := range firstLines(h.Markdown, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}

func firstLines(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
