// ABOUTME: Tool dispatcher: static method table, typed params, validate-before-mutate
// ABOUTME: The sole legal path for every state mutation; one bus event per success

package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/2389/symposium/internal/analysis"
	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/engine"
	"github.com/2389/symposium/internal/store"
)

// handlerFunc executes one tool call. Params arrive raw; each handler owns
// its typed parameter struct and validates before touching any state.
type handlerFunc func(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error)

// Dispatcher routes named operations to handlers. It is constructed once at
// startup and shared by the HTTP server and the socket hub.
type Dispatcher struct {
	store    store.Store
	engine   *engine.Engine
	bus      *bus.Bus
	analyzer *analysis.Analyzer
	logger   *slog.Logger

	mu      sync.Mutex
	current string // current-session pointer, process-local

	// defaults seed the moderator settings of sessions created without
	// explicit ones
	defaults store.ModeratorSettings

	methods map[string]handlerFunc
}

// SetSessionDefaults installs the moderator settings applied to new sessions
// whose create call does not supply its own. Call before serving traffic.
func (d *Dispatcher) SetSessionDefaults(defaults store.ModeratorSettings) {
	d.defaults = defaults
}

// NewDispatcher builds the dispatcher with its full method table.
func NewDispatcher(st store.Store, e *engine.Engine, b *bus.Bus, a *analysis.Analyzer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:    st,
		engine:   e,
		bus:      b,
		analyzer: a,
		logger:   logger.With("component", "dispatch"),
	}
	d.methods = map[string]handlerFunc{
		// Session lifecycle
		"create_session":         handleCreateSession,
		"get_session":            handleGetSession,
		"list_sessions":          handleListSessions,
		"update_session":         handleUpdateSession,
		"delete_session":         handleDeleteSession,
		"duplicate_session":      handleDuplicateSession,
		"import_session":         handleImportSession,
		"switch_current_session": handleSwitchCurrentSession,
		"get_current_session":    handleGetCurrentSession,

		// Participant lifecycle
		"add_participant":           handleAddParticipant,
		"list_participants":         handleListParticipants,
		"update_participant":        handleUpdateParticipant,
		"update_participant_status": handleUpdateParticipantStatus,
		"remove_participant":        handleRemoveParticipant,

		// Messages
		"send_message":   handleSendMessage,
		"get_messages":   handleGetMessages,
		"update_message": handleUpdateMessage,
		"delete_message": handleDeleteMessage,
		"clear_messages": handleClearMessages,

		// Conversation control
		"start_conversation":  handleStartConversation,
		"pause_conversation":  handlePauseConversation,
		"resume_conversation": handleResumeConversation,
		"stop_conversation":   handleStopConversation,
		"inject_prompt":       handleInjectPrompt,

		// Analysis
		"trigger_live_analysis":  handleAnalyze,
		"analyze_conversation":   handleAnalyze,
		"get_analysis_history":   handleGetAnalysisHistory,
		"save_analysis_snapshot": handleSaveAnalysisSnapshot,
		"clear_analysis_history": handleClearAnalysisHistory,

		// Export
		"export_session": handleExportSession,

		// Error tracking
		"log_api_error":    handleLogAPIError,
		"get_api_errors":   handleGetAPIErrors,
		"clear_api_errors": handleClearAPIErrors,

		// Discoverability (read-only, no events)
		"list_tools":     handleListTools,
		"list_prompts":   handleListPrompts,
		"get_prompt":     handleGetPrompt,
		"list_resources": handleListResources,
		"read_resource":  handleReadResource,
	}
	return d
}

// Dispatch executes one named operation. Unknown methods return -32601;
// handler failures are normalized into the JSON-RPC error taxonomy.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, *Error) {
	h, ok := d.methods[method]
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found"}
	}

	result, err := h(ctx, d, params)
	if err != nil {
		rpcErr := normalizeError(err)
		d.logger.Debug("tool call failed",
			"method", method,
			"code", rpcErr.Code,
			"error", err)
		return nil, rpcErr
	}
	return result, nil
}

// HasMethod reports whether a method name is in the table.
func (d *Dispatcher) HasMethod(method string) bool {
	_, ok := d.methods[method]
	return ok
}

// CurrentSession returns the process-local current-session pointer.
func (d *Dispatcher) CurrentSession() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Dispatcher) setCurrentSession(id string) {
	d.mu.Lock()
	d.current = id
	d.mu.Unlock()
}

// clearCurrentIf drops the pointer when the named session goes away.
func (d *Dispatcher) clearCurrentIf(id string) {
	d.mu.Lock()
	if d.current == id {
		d.current = ""
	}
	d.mu.Unlock()
}

// decodeParams unmarshals params into a handler's typed struct. A missing
// params object decodes into zero values so required-field validation in
// the handler reports the precise omission.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return invalidParams("malformed params: " + err.Error())
	}
	return nil
}

// SessionIDFromParams extracts a session_id from raw params without full
// decoding. Used by transports to compute refresh keys for completed calls.
func SessionIDFromParams(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var ref struct {
		SessionID string `json:"session_id"`
	}
	if json.Unmarshal(params, &ref) != nil {
		return ""
	}
	return ref.SessionID
}

// ExperimentIDFromParams extracts an experiment_id for refresh keys.
func ExperimentIDFromParams(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var ref struct {
		ExperimentID string `json:"experiment_id"`
	}
	if json.Unmarshal(params, &ref) != nil {
		return ""
	}
	return ref.ExperimentID
}
