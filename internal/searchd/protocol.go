package searchd

import (
	"encoding/json"

	"github.com/Aman-CERP/amanmcp/internal/search"
	"github.com/Aman-CERP/amanmcp/internal/store"
)

// Protocol version exchanged in every request so client and server can
// detect a skew.
const ProtocolVersion = 1

// Method names recognized by the daemon's request dispatcher.
const (
	MethodSearch = "search"
	MethodStatus = "status"
	MethodPing   = "ping"
)

// Request is one client call, JSON-encoded and newline-delimited over
// the Unix socket connection.
type Request struct {
	Version int             `json:"version"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the daemon's reply to a Request, identified by the same ID.
// Exactly one of Result or Error is populated.
type Response struct {
	Version int             `json:"version"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a daemon-side failure, carrying enough of the search core's
// structured error to let the client decide whether to retry or fall
// back to running the search in-process.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) Error() string { return e.Message }

// SearchParams is the wire form of a search.Request for MethodSearch.
type SearchParams struct {
	WorkspaceID     string        `json:"workspace_id"`
	KnowledgeBaseID string        `json:"knowledge_base_id"`
	SearchContent   string        `json:"search_content"`
	AISearch        bool          `json:"ai_search"`
	PageSize        int           `json:"page_size,omitempty"`
	PageDelta       int           `json:"page_delta,omitempty"`
	Cursor          *store.Cursor `json:"cursor,omitempty"`
}

// ToRequest converts p into the search.Request the Engine expects.
func (p SearchParams) ToRequest() search.Request {
	return search.Request{
		WorkspaceID:     p.WorkspaceID,
		KnowledgeBaseID: p.KnowledgeBaseID,
		SearchContent:   p.SearchContent,
		AISearch:        p.AISearch,
		PageSize:        p.PageSize,
		PageDelta:       p.PageDelta,
		Cursor:          p.Cursor,
	}
}

// SearchParamsFrom builds wire params from a search.Request.
func SearchParamsFrom(req search.Request) SearchParams {
	return SearchParams{
		WorkspaceID:     req.WorkspaceID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		SearchContent:   req.SearchContent,
		AISearch:        req.AISearch,
		PageSize:        req.PageSize,
		PageDelta:       req.PageDelta,
		Cursor:          req.Cursor,
	}
}

// SearchResult is the wire form of every search.PageBatch the daemon
// emits for one search call, concatenated into a single reply: the
// client-daemon protocol is request/response, not streaming, so the
// daemon drains the Engine's page channel server-side before replying.
type SearchResult struct {
	Hits []search.Hit `json:"hits"`
}

// StatusResult answers MethodStatus.
type StatusResult struct {
	PID     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// PingResult answers MethodPing.
type PingResult struct {
	OK bool `json:"ok"`
}
