// ABOUTME: WebSocket hub: per-client JSON-RPC dispatch plus refresh-key broadcast
// ABOUTME: Tracks liveness with ping/pong and drops clients that miss a cycle

package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/2389/symposium/internal/auth"
	"github.com/2389/symposium/internal/rpc"
)

// refreshMethod names the broadcast notification carrying refresh keys.
const refreshMethod = "symposium/data_refresh"

// defaultPingInterval is one liveness cycle; a client that fails to pong
// within a cycle is terminated.
const defaultPingInterval = 30 * time.Second

// Hub accepts websocket clients, executes their JSON-RPC frames through the
// shared dispatcher, and broadcasts invalidation notices after mutations.
type Hub struct {
	dispatcher *rpc.Dispatcher
	verifier   auth.TokenVerifier
	logger     *slog.Logger
	// pingInterval is overridable in tests
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates the hub. A nil verifier disables auth.
func NewHub(d *rpc.Dispatcher, verifier auth.TokenVerifier, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		dispatcher:   d,
		verifier:     verifier,
		logger:       logger.With("component", "socket"),
		pingInterval: defaultPingInterval,
		clients:      make(map[string]*client),
	}
}

// RegisterRoutes registers the websocket endpoint on the given ServeMux.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
}

// SetPingInterval overrides the liveness cycle. Zero keeps the default.
func (h *Hub) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.pingInterval = d
	}
}

// ClientCount reports connected clients. Test helper.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRequest(h.verifier, r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-origin policy handled by auth
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	c := &client{id: uuid.New().String(), conn: conn}
	h.add(c)
	h.logger.Info("socket client connected", "client_id", c.id)

	pingCtx, stopPing := context.WithCancel(context.Background())
	go h.pingLoop(pingCtx, c)

	h.readLoop(r.Context(), c)

	stopPing()
	h.remove(c.id)
	c.close(websocket.StatusNormalClosure, "bye")
	h.logger.Info("socket client disconnected", "client_id", c.id)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// pingLoop terminates the client after one missed liveness cycle.
func (h *Hub) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(h.pingInterval); err != nil {
				h.logger.Warn("socket client unresponsive, terminating",
					"client_id", c.id, "error", err)
				c.close(websocket.StatusPolicyViolation, "ping timeout")
				h.remove(c.id)
				return
			}
		}
	}
}

// readLoop executes inbound JSON-RPC frames until the connection drops.
func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("socket read error", "client_id", c.id, "error", err)
			}
			return
		}
		h.handleFrame(ctx, c, data)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *client, data []byte) {
	var req rpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		h.respondError(c, nil, &rpc.Error{Code: rpc.CodeParseError, Message: "invalid JSON"})
		return
	}
	if req.JSONRPC != "2.0" {
		h.respondError(c, req.ID, &rpc.Error{Code: rpc.CodeInvalidRequest, Message: "invalid JSON-RPC version"})
		return
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	result, rpcErr := h.dispatcher.Dispatch(ctx, req.Method, req.Params)
	if rpcErr != nil {
		if !isNotification {
			h.respondError(c, req.ID, rpcErr)
		}
		return
	}
	if !isNotification {
		h.respond(c, rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result})
	}

	// A completed mutation invalidates other clients' cached views
	keys := rpc.KeysForTool(req.Method,
		rpc.SessionIDFromParams(req.Params),
		rpc.ExperimentIDFromParams(req.Params))
	if len(keys) > 0 {
		h.broadcastRefresh(c.id, keys)
	}
}

// refreshParams is the data_refresh notification payload.
type refreshParams struct {
	RefreshKeys []string  `json:"refreshKeys"`
	Timestamp   time.Time `json:"timestamp"`
	FromClient  string    `json:"fromClient"`
}

// refreshNotice is the full notification frame.
type refreshNotice struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  refreshParams `json:"params"`
}

// broadcastRefresh tells every other client which views went stale. The
// originating client already holds the response and needs no self-refresh.
func (h *Hub) broadcastRefresh(fromClient string, keys []string) {
	notice := refreshNotice{
		JSONRPC: "2.0",
		Method:  refreshMethod,
		Params: refreshParams{
			RefreshKeys: keys,
			Timestamp:   time.Now(),
			FromClient:  fromClient,
		},
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == fromClient {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(notice); err != nil {
			h.logger.Debug("refresh broadcast failed", "client_id", c.id, "error", err)
		}
	}
}

func (h *Hub) respond(c *client, resp rpc.Response) {
	if err := c.send(resp); err != nil {
		h.logger.Debug("socket response failed", "client_id", c.id, "error", err)
	}
}

func (h *Hub) respondError(c *client, id json.RawMessage, rpcErr *rpc.Error) {
	h.respond(c, rpc.Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}
