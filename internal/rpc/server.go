// ABOUTME: HTTP transport for the tool dispatch boundary
// ABOUTME: JSON-RPC 2.0 over POST with body cap, version check, and optional auth

package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/2389/symposium/internal/auth"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Server exposes the dispatcher over HTTP POST.
type Server struct {
	dispatcher *Dispatcher
	verifier   auth.TokenVerifier
	logger     *slog.Logger
}

// NewServer wraps a dispatcher. A nil verifier disables authentication.
func NewServer(d *Dispatcher, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: d,
		verifier:   verifier,
		logger:     logger.With("component", "rpc"),
	}
}

// RegisterRoutes registers the RPC endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/rpc", s.handleRPC)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := auth.RequireRequest(s.verifier, r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeError(w, nil, &Error{Code: CodeParseError, Message: "failed to read request body"})
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeError(w, nil, &Error{Code: CodeInvalidRequest, Message: "request body too large"})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, &Error{Code: CodeParseError, Message: "invalid JSON"})
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, &Error{Code: CodeInvalidRequest, Message: "invalid JSON-RPC version"})
		return
	}
	if req.Method == "" {
		s.writeError(w, req.ID, &Error{Code: CodeInvalidRequest, Message: "method is required"})
		return
	}

	s.logger.Debug("rpc request", "method", req.Method)

	result, rpcErr := s.dispatcher.Dispatch(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.writeError(w, req.ID, rpcErr)
		return
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.write(w, Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *Error) {
	s.write(w, Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

func (s *Server) write(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("writing rpc response", "error", err)
	}
}
