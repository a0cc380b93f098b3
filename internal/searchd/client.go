package searchd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/search"
)

// Client is a thin, synchronous client for a running daemon: one
// connection per call, closed when the call returns. The search CLI
// command falls back to an in-process Engine when dialing fails.
type Client struct {
	cfg Config
	seq uint64
}

// NewClient constructs a Client from cfg.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Ping reports whether a daemon is listening on the configured socket.
func (c *Client) Ping(ctx context.Context) error {
	var result PingResult
	return c.call(ctx, MethodPing, nil, &result)
}

// Status queries the daemon's process status.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var result StatusResult
	err := c.call(ctx, MethodStatus, nil, &result)
	return result, err
}

// Search runs a search through the daemon and returns every hit, already
// concatenated across pages server-side.
func (c *Client) Search(ctx context.Context, req search.Request) (SearchResult, error) {
	var result SearchResult
	err := c.call(ctx, MethodSearch, SearchParamsFrom(req), &result)
	return result, err
}

// call dials the socket, sends one Request, reads one Response, and
// closes the connection. It is safe for concurrent use.
func (c *Client) call(ctx context.Context, method string, params any, into any) error {
	var paramsRaw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		paramsRaw = b
	}

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("dial searchd: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}

	req := Request{
		Version: ProtocolVersion,
		ID:      atomic.AddUint64(&c.seq, 1),
		Method:  method,
		Params:  paramsRaw,
	}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return fmt.Errorf("read response: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if into != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, into); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Available reports whether a daemon appears reachable, with a short
// timeout independent of cfg.Timeout so CLI commands can fail over to
// local execution quickly.
func (c *Client) Available(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.Ping(pingCtx) == nil
}
