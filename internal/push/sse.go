// ABOUTME: Server-sent events bridge from the bus to long-lived observers
// ABOUTME: Optional session scoping, immediate connected ack, periodic pings

package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/symposium/internal/auth"
	"github.com/2389/symposium/internal/bus"
)

// pingInterval keeps idle connections alive through proxies.
const pingInterval = 30 * time.Second

// eventBuffer bounds per-connection queueing; a slow reader drops events
// rather than blocking the bus (observers refetch on reconnect anyway).
const eventBuffer = 64

// Handler streams bus events to HTTP clients as server-sent events.
type Handler struct {
	bus      *bus.Bus
	verifier auth.TokenVerifier
	logger   *slog.Logger
	// ping is overridable in tests
	ping time.Duration
}

// NewHandler creates the SSE bridge. A nil verifier disables auth.
func NewHandler(b *bus.Bus, verifier auth.TokenVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bus:      b,
		verifier: verifier,
		logger:   logger.With("component", "push"),
		ping:     pingInterval,
	}
}

// RegisterRoutes registers the events endpoint on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/events", h.handleEvents)
}

// SetPingInterval overrides the keep-alive cadence. Zero keeps the default.
func (h *Handler) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.ping = d
	}
}

// wireEvent is one SSE data payload.
type wireEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	PodID     string    `json:"pod_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := auth.RequireRequest(h.verifier, r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionFilter := r.URL.Query().Get("session_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Immediate ack so clients can confirm the stream before any event fires
	h.writeEvent(w, wireEvent{Type: "connected", SessionID: sessionFilter, Timestamp: time.Now()})
	flusher.Flush()

	events := make(chan bus.Event, eventBuffer)
	unsubscribe := h.bus.SubscribeAll(func(e bus.Event) {
		if sessionFilter != "" && e.SessionID != "" && e.SessionID != sessionFilter {
			return
		}
		select {
		case events <- e:
		default:
			// Slow consumer; drop rather than block the bus
		}
	})
	defer unsubscribe()

	h.logger.Debug("sse client connected", "session_filter", sessionFilter)
	defer h.logger.Debug("sse client disconnected", "session_filter", sessionFilter)

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			h.writeEvent(w, wireEvent{
				Type:      string(e.Type),
				SessionID: e.SessionID,
				Payload:   e.Payload,
				PodID:     e.PodID,
				Timestamp: e.Timestamp,
			})
			flusher.Flush()
		case <-ticker.C:
			h.writeEvent(w, wireEvent{Type: "ping", Timestamp: time.Now()})
			flusher.Flush()
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, e wireEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("marshaling sse event", "type", e.Type, "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
