package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	amanerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/ratelimit"
)

// Config configures the HTTP-backed Client. Endpoints follow an
// Ollama-compatible /api/generate and /api/embed shape for the chat and
// embedding channels; Rerank/Translate speak plain JSON request/response
// contracts.
type Config struct {
	ChatEndpoint      string // e.g. http://localhost:11434/api/generate
	ChatModel         string
	EmbeddingEndpoint string // e.g. http://localhost:11434/api/embed
	EmbeddingModel    string
	RerankEndpoint    string
	RerankModel       string
	TranslateEndpoint string

	Timeout time.Duration

	// Limiter rate-limits each channel independently. May be nil, in
	// which case calls proceed unthrottled.
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns sensible defaults pointed at a local Ollama.
func DefaultConfig() Config {
	return Config{
		ChatEndpoint:      "http://localhost:11434/api/generate",
		ChatModel:         "llama3.2:1b",
		EmbeddingEndpoint: "http://localhost:11434/api/embed",
		EmbeddingModel:    "nomic-embed-text",
		Timeout:           10 * time.Second,
	}
}

// Client is an HTTP implementation of Completer, Embedder, Reranker, and
// Translator. Each channel carries its own circuit breaker so a dead
// service fails fast instead of burning its full timeout on every call.
type Client struct {
	http     *http.Client
	cfg      Config
	breakers map[string]*amanerrors.CircuitBreaker
}

// New creates a Client from cfg, applying defaults for zero fields.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	breakers := make(map[string]*amanerrors.CircuitBreaker, 4)
	for _, ch := range []string{"llm", "embedding", "reranker", "translator"} {
		breakers[ch] = amanerrors.NewCircuitBreaker(ch)
	}
	return &Client{http: &http.Client{Timeout: cfg.Timeout}, cfg: cfg, breakers: breakers}
}

// do executes req through the channel's circuit breaker. Only transport
// failures trip the breaker; an HTTP error status still means the
// service is up and answering.
func (c *Client) do(channel string, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.breakers[channel].Execute(func() error {
		r, err := c.http.Do(req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete issues one structured completion call and decodes the JSON
// response body into out. model overrides cfg.ChatModel when non-empty.
func (c *Client) Complete(ctx context.Context, prompt, model string, maxTokens int, out any) error {
	if model == "" {
		model = c.cfg.ChatModel
	}
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, "llm"); err != nil {
			return err
		}
	}

	reqBody := generateRequest{Model: model, Prompt: prompt, Format: "json", Stream: false}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do("llm", req)
	if err != nil {
		return fmt.Errorf("execute completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return fmt.Errorf("decode completion response: %w", err)
	}
	if err := json.Unmarshal([]byte(gen.Response), out); err != nil {
		return fmt.Errorf("parse structured completion: %w", err)
	}
	return nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// CreateEmbeddings embeds texts in a single batched call.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, "embedding"); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embedRequest{Model: c.cfg.EmbeddingModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EmbeddingEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do("embedding", req)
	if err != nil {
		return nil, fmt.Errorf("execute embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

// Rerank scores documents against query via the reranker channel,
// returning hits sorted descending by relevance score.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]RerankHit, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, "reranker"); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: c.cfg.RerankModel})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RerankEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do("reranker", req)
	if err != nil {
		return nil, fmt.Errorf("execute rerank request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	hits := make([]RerankHit, len(out.Data))
	for i, d := range out.Data {
		hits[i] = RerankHit{Index: d.Index, Score: d.RelevanceScore}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

type translateRequest struct {
	Text string `json:"text"`
	Dest string `json:"dest"`
}

type translateResponse struct {
	Text string `json:"text"`
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

// Translate translates text into dest via the translator channel.
func (c *Client) Translate(ctx context.Context, text, dest string) (Translation, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, "translator"); err != nil {
			return Translation{}, err
		}
	}

	body, err := json.Marshal(translateRequest{Text: text, Dest: dest})
	if err != nil {
		return Translation{}, fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranslateEndpoint, bytes.NewReader(body))
	if err != nil {
		return Translation{}, fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do("translator", req)
	if err != nil {
		return Translation{}, fmt.Errorf("execute translate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Translation{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Translation{}, fmt.Errorf("decode translate response: %w", err)
	}
	return Translation{Text: out.Text, Src: out.Src, Dest: out.Dest}, nil
}

var (
	_ Completer  = (*Client)(nil)
	_ Embedder   = (*Client)(nil)
	_ Reranker   = (*Client)(nil)
	_ Translator = (*Client)(nil)
)
