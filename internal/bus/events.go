// ABOUTME: Closed vocabulary of event types and their payload shapes
// ABOUTME: Every boundary mutation and engine transition emits exactly one of these

package bus

import "github.com/2389/symposium/internal/store"

// EventType tags an event with its kind. The vocabulary is closed: relays
// and the refresh-key mapping switch over these values exhaustively.
type EventType string

// Session lifecycle events
const (
	SessionCreated  EventType = "session_created"
	SessionUpdated  EventType = "session_updated"
	SessionDeleted  EventType = "session_deleted"
	SessionSwitched EventType = "session_switched"
)

// Participant lifecycle events
const (
	ParticipantAdded   EventType = "participant_added"
	ParticipantUpdated EventType = "participant_updated"
	ParticipantRemoved EventType = "participant_removed"
)

// Message events
const (
	MessageAdded    EventType = "message_added"
	MessageUpdated  EventType = "message_updated"
	MessageDeleted  EventType = "message_deleted"
	MessagesCleared EventType = "messages_cleared"
)

// Conversation control events
const (
	ConversationStarted   EventType = "conversation_started"
	ConversationPaused    EventType = "conversation_paused"
	ConversationResumed   EventType = "conversation_resumed"
	ConversationStopped   EventType = "conversation_stopped"
	ConversationCompleted EventType = "conversation_completed"
	ConversationError     EventType = "conversation_error"
	TurnStarted           EventType = "turn_started"
	TurnCompleted         EventType = "turn_completed"
)

// Analysis events
const (
	AnalysisSnapshotSaved EventType = "analysis_snapshot"
	AnalysisCleared       EventType = "analysis_cleared"
)

// Error tracking events
const (
	APIErrorLogged   EventType = "api_error_logged"
	APIErrorsCleared EventType = "api_errors_cleared"
)

// SessionPayload accompanies session lifecycle events.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ParticipantPayload accompanies participant lifecycle events.
type ParticipantPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status,omitempty"`
}

// MessagePayload accompanies message events.
type MessagePayload struct {
	SessionID       string `json:"session_id"`
	MessageID       string `json:"message_id,omitempty"`
	ParticipantID   string `json:"participant_id,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
	Content         string `json:"content,omitempty"`
}

// TurnPayload accompanies turn_started and turn_completed.
type TurnPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
}

// AnalysisPayload accompanies analysis events.
type AnalysisPayload struct {
	SessionID  string                  `json:"session_id"`
	SnapshotID string                  `json:"snapshot_id,omitempty"`
	Snapshot   *store.AnalysisSnapshot `json:"snapshot,omitempty"`
}

// APIErrorPayload accompanies api_error_logged.
type APIErrorPayload struct {
	SessionID     string `json:"session_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	Provider      string `json:"provider"`
	Operation     string `json:"operation"`
	Attempt       int    `json:"attempt"`
	MaxAttempts   int    `json:"max_attempts"`
}
