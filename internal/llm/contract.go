// Package llm defines the call contracts the cross-language search
// engine consumes for query expansion, embedding, reranking, and
// translation, plus an HTTP client implementing them against an
// Ollama-compatible chat/embedding endpoint. The concrete services
// backing these contracts live elsewhere; only the shape of the call is
// fixed here.
package llm

import "context"

// Completer issues one structured completion call per query expansion.
// response is decoded into the struct pointed to by out; callers should
// define out as a pointer to a JSON-tagged struct.
type Completer interface {
	Complete(ctx context.Context, prompt, model string, maxTokens int, out any) error
}

// Embedder creates one embedding per input text, batched in a single call.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankHit is a single reranked candidate, ordered descending by Score.
type RerankHit struct {
	Index int
	Score float64
}

// Reranker scores a query against a list of candidate texts.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RerankHit, error)
}

// Translation is the result of a single translate() call.
type Translation struct {
	Text string
	Src  string
	Dest string
}

// Translator translates text into the destination language.
type Translator interface {
	Translate(ctx context.Context, text, dest string) (Translation, error)
}
