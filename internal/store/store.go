// ABOUTME: Store interface and data types for symposium persistence
// ABOUTME: Defines Session, Participant, Message, AnalysisSnapshot, APIError and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when trying to create a session that already exists
var ErrDuplicateSession = errors.New("session already exists")

// Session status values
const (
	SessionIdle      = "idle"
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionError     = "error"
)

// Participant status values
const (
	ParticipantActive       = "active"
	ParticipantThinking     = "thinking"
	ParticipantIdle         = "idle"
	ParticipantError        = "error"
	ParticipantDisconnected = "disconnected"
)

// ModeratorID is the synthetic participant id used for the starting prompt
// and human interjections. It is never scheduled for automatic turns.
const ModeratorID = "moderator"

// PositionUnassigned asks AddParticipant to assign the next free position.
// Explicit positions (including 0, e.g. on import) are stored as given.
const PositionUnassigned = -1

// ModeratorSettings control the automatic progression of a session.
type ModeratorSettings struct {
	// MaxMessages stops the conversation once the session holds this many
	// messages. Zero means unlimited.
	MaxMessages int `json:"max_messages"`
	// ErrorRateThreshold is the fraction of attempted turns (0..1) that may
	// fail before the session transitions to error status.
	ErrorRateThreshold float64 `json:"error_rate_threshold"`
	// ContextWindow is the number of recent messages sent to each
	// participant. Zero means full history.
	ContextWindow int `json:"context_window"`
	// AnalysisProvider/AnalysisModel select the model used for live analysis.
	AnalysisProvider string `json:"analysis_provider,omitempty"`
	AnalysisModel    string `json:"analysis_model,omitempty"`
}

// Session is a persisted multi-participant conversation.
type Session struct {
	ID          string
	Name        string
	Description string
	Template    string
	Status      string
	Moderator   ModeratorSettings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GenerationSettings hold per-participant model call parameters.
type GenerationSettings struct {
	Temperature   float64       `json:"temperature"`
	MaxTokens     int           `json:"max_tokens"`
	ResponseDelay time.Duration `json:"response_delay"`
}

// Participant is one language-model voice inside a session.
// Position records insertion order, which drives round-robin turn selection.
type Participant struct {
	ID           string
	SessionID    string
	Name         string
	Provider     string
	Model        string
	Status       string
	Settings     GenerationSettings
	SystemPrompt string
	Position     int
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GenerationInfo is the metadata captured for an automatic turn's message.
type GenerationInfo struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	LatencyMS    int64   `json:"latency_ms"`
}

// Message is a single contribution to a session. The participant name and
// type are snapshotted so history survives later participant edits.
type Message struct {
	ID              string
	SessionID       string
	ParticipantID   string
	ParticipantName string
	ParticipantType string // provider id, or "moderator"
	Content         string
	Generation      *GenerationInfo
	CreatedAt       time.Time
}

// AnalysisSnapshot is one point on a session's append-only analysis timeline.
type AnalysisSnapshot struct {
	ID               string
	SessionID        string
	MessageCount     int
	ParticipantCount int
	Topics           []string
	Themes           []string
	Tensions         []string
	Convergences     []string
	Depth            string
	Phase            string
	CreatedAt        time.Time
}

// APIError is one failed model call attempt, kept as an audit trail and
// used to compute per-session error rates.
type APIError struct {
	ID            string
	SessionID     string
	ParticipantID string
	Provider      string
	Operation     string
	Message       string
	Attempt       int
	MaxAttempts   int
	CreatedAt     time.Time
}

// SessionFilter narrows ListSessions results.
type SessionFilter struct {
	Status string
	Limit  int
}

// Store defines the persistence interface for symposium state.
// Implementations must serialize mutations per session id so the engine's
// automatic appends and manual boundary updates cannot interleave.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, id string) error

	// Participants
	AddParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, id string) (*Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error)
	UpdateParticipant(ctx context.Context, p *Participant) error
	RemoveParticipant(ctx context.Context, id string) error

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)
	UpdateMessage(ctx context.Context, msg *Message) error
	DeleteMessage(ctx context.Context, id string) error
	ClearMessages(ctx context.Context, sessionID string) error

	// Analysis snapshots (append-only timeline)
	AppendSnapshot(ctx context.Context, snap *AnalysisSnapshot) error
	ListSnapshots(ctx context.Context, sessionID string, limit int) ([]*AnalysisSnapshot, error)
	ClearSnapshots(ctx context.Context, sessionID string) error

	// API errors (append-only audit trail)
	AppendAPIError(ctx context.Context, apiErr *APIError) error
	ListAPIErrors(ctx context.Context, sessionID string, limit int) ([]*APIError, error)
	ClearAPIErrors(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store
	Close() error
}
