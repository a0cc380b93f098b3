package searchd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	amanerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/search"
)

// Engine is the subset of *search.Engine the daemon needs, kept as an
// interface so tests can substitute a fake without standing up a real
// store and LLM clients.
type Engine interface {
	Search(ctx context.Context, req search.Request) (<-chan search.PageBatch, <-chan error)
}

// Server accepts connections on a Unix domain socket and serves
// Request/Response pairs against an Engine.
type Server struct {
	cfg     Config
	engine  Engine
	log     *slog.Logger
	started time.Time

	mu       sync.Mutex
	listener net.Listener
}

// NewServer constructs a Server. logger may be nil, in which case
// slog.Default() is used.
func NewServer(cfg Config, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, engine: engine, log: logger}
}

// ListenAndServe binds the configured socket path and serves connections
// until ctx is canceled, at which point the listener is closed and any
// in-flight connections are allowed to finish their current request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.started = time.Now()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("accept failed", "error", err)
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn serves newline-delimited JSON Request/Response pairs on a
// single connection until the peer disconnects or ctx is canceled.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(Response{Error: &Error{Code: "INVALID_REQUEST", Message: err.Error()}})
			continue
		}

		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			s.log.Warn("write response failed", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{Version: ProtocolVersion, ID: req.ID}

	switch req.Method {
	case MethodPing:
		resp.Result, _ = json.Marshal(PingResult{OK: true})

	case MethodStatus:
		s.mu.Lock()
		uptime := time.Since(s.started)
		s.mu.Unlock()
		resp.Result, _ = json.Marshal(StatusResult{
			PID:     os.Getpid(),
			Uptime:  uptime.String(),
			Version: fmt.Sprintf("%d", ProtocolVersion),
		})

	case MethodSearch:
		var params SearchParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &Error{Code: "INVALID_REQUEST", Message: err.Error()}
			return resp
		}
		result, err := s.runSearch(ctx, params.ToRequest())
		if err != nil {
			resp.Error = toWireError(err)
			return resp
		}
		resp.Result, _ = json.Marshal(result)

	default:
		resp.Error = &Error{Code: "UNKNOWN_METHOD", Message: fmt.Sprintf("unknown method %q", req.Method)}
	}

	return resp
}

// runSearch drains the Engine's page stream for a single search request,
// concatenating every batch since the client-daemon protocol replies
// once per request rather than streaming pages.
func (s *Server) runSearch(ctx context.Context, req search.Request) (SearchResult, error) {
	pages, errs := s.engine.Search(ctx, req)

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
				return SearchResult{}, err
			}
		case <-ctx.Done():
			return SearchResult{}, ctx.Err()
		}
	}

	return SearchResult{Hits: hits}, nil
}

func toWireError(err error) *Error {
	return &Error{
		Code:      amanerrors.GetCode(err),
		Message:   err.Error(),
		Retryable: amanerrors.IsRetryable(err),
	}
}

// Shutdown stops accepting new connections immediately. Prefer canceling
// the context passed to ListenAndServe, which also lets in-flight
// connections drain.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
