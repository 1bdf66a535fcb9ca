// ABOUTME: Conversation orchestration engine with a per-session loop registry
// ABOUTME: Start/Pause/Resume/Inject/Stop map onto loop lifecycle and persisted status

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/model"
	"github.com/2389/symposium/internal/store"
)

var (
	// ErrAlreadyRunning is returned by Start when the session has a live loop.
	ErrAlreadyRunning = errors.New("conversation already running")
	// ErrNotRunning is returned by Pause/Resume/Inject when no loop exists.
	ErrNotRunning = errors.New("conversation not running")
	// ErrNotPaused is returned by Resume/Inject when the loop is not paused.
	ErrNotPaused = errors.New("conversation not paused")
	// ErrEmptyPrompt rejects blank starting prompts and interjections.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrNeedParticipants rejects Start on sessions with fewer than two voices.
	ErrNeedParticipants = errors.New("session needs at least two participants")
)

// Options tune the engine. Zero values fall back to sensible defaults.
type Options struct {
	RetryPolicy model.RetryPolicy
	// CallTimeout bounds each individual gateway attempt.
	CallTimeout time.Duration
	// TurnDelay is the default pause before a participant speaks, used when
	// the participant's own ResponseDelay is zero.
	TurnDelay time.Duration
	Logger    *slog.Logger
}

// Engine runs at most one turn loop per session. It is constructed once at
// startup and passed by handle; all loop state lives in its registry.
type Engine struct {
	store    store.Store
	bus      *bus.Bus
	gateway  model.Gateway
	policy   model.RetryPolicy
	timeout  time.Duration
	delay    time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	loops map[string]*loop
}

// New creates an Engine. Pass nil logger for default.
func New(st store.Store, b *bus.Bus, gw model.Gateway, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		store:   st,
		bus:     b,
		gateway: gw,
		policy:  opts.RetryPolicy,
		timeout: timeout,
		delay:   opts.TurnDelay,
		logger:  logger.With("component", "engine"),
		loops:   make(map[string]*loop),
	}
}

// Running reports whether a session has a live loop.
func (e *Engine) Running(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loops[sessionID]
	return ok
}

// Start begins automatic turn-taking for a session. The prompt is recorded
// as a moderator message before the first turn. A completed or errored
// session may be started again; its history is preserved and the loop
// resumes from the current message count.
func (e *Engine) Start(ctx context.Context, sessionID, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	participants, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading participants: %w", err)
	}
	if countSpeakers(participants) < 2 {
		return ErrNeedParticipants
	}

	e.mu.Lock()
	if _, live := e.loops[sessionID]; live {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	l := newLoop(e, session)
	e.loops[sessionID] = l
	e.mu.Unlock()

	if err := e.recordModerator(ctx, sessionID, prompt); err != nil {
		e.remove(sessionID)
		return err
	}

	session.Status = store.SessionActive
	if err := e.store.UpdateSession(ctx, session); err != nil {
		e.remove(sessionID)
		return fmt.Errorf("activating session: %w", err)
	}

	e.bus.Emit(bus.ConversationStarted, sessionID, bus.SessionPayload{
		SessionID: sessionID,
		Name:      session.Name,
		Status:    store.SessionActive,
	})
	e.logger.Info("conversation started", "session_id", sessionID)

	go l.run()
	return nil
}

// Pause suspends the loop between turns. Pausing an already-paused
// conversation is a no-op.
func (e *Engine) Pause(ctx context.Context, sessionID string) error {
	l := e.lookup(sessionID)
	if l == nil {
		return ErrNotRunning
	}
	if !l.pause() {
		return nil
	}

	if err := e.setStatus(ctx, sessionID, store.SessionPaused); err != nil {
		return err
	}
	e.bus.Emit(bus.ConversationPaused, sessionID, bus.SessionPayload{
		SessionID: sessionID,
		Status:    store.SessionPaused,
	})
	e.logger.Info("conversation paused", "session_id", sessionID)
	return nil
}

// Resume continues a paused loop. Resuming an active conversation is a no-op.
func (e *Engine) Resume(ctx context.Context, sessionID string) error {
	l := e.lookup(sessionID)
	if l == nil {
		return ErrNotRunning
	}
	if !l.resume() {
		return nil
	}

	if err := e.setStatus(ctx, sessionID, store.SessionActive); err != nil {
		return err
	}
	e.bus.Emit(bus.ConversationResumed, sessionID, bus.SessionPayload{
		SessionID: sessionID,
		Status:    store.SessionActive,
	})
	e.logger.Info("conversation resumed", "session_id", sessionID)
	return nil
}

// Inject records a moderator interjection into a paused conversation and
// resumes it, so the next scheduled participant responds to the new prompt.
func (e *Engine) Inject(ctx context.Context, sessionID, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	l := e.lookup(sessionID)
	if l == nil {
		return ErrNotRunning
	}
	if !l.isPaused() {
		return ErrNotPaused
	}

	if err := e.recordModerator(ctx, sessionID, prompt); err != nil {
		return err
	}
	return e.Resume(ctx, sessionID)
}

// Stop halts the loop, cancelling any pending delay, and marks the session
// completed. Stopping a session with no live loop is a no-op; a stopped
// session can only be started again as a fresh conversation.
func (e *Engine) Stop(ctx context.Context, sessionID string) error {
	l := e.lookup(sessionID)
	if l == nil {
		return nil
	}
	l.stop()
	<-l.done
	e.remove(sessionID)

	if err := e.setStatus(ctx, sessionID, store.SessionCompleted); err != nil {
		return err
	}
	e.bus.Emit(bus.ConversationStopped, sessionID, bus.SessionPayload{
		SessionID: sessionID,
		Status:    store.SessionCompleted,
	})
	e.logger.Info("conversation stopped", "session_id", sessionID)
	return nil
}

// StopAll stops every live loop. Used during shutdown.
func (e *Engine) StopAll(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.loops))
	for id := range e.loops {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.Stop(ctx, id); err != nil {
			e.logger.Warn("stop during shutdown failed", "session_id", id, "error", err)
		}
	}
}

func (e *Engine) lookup(sessionID string) *loop {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loops[sessionID]
}

func (e *Engine) remove(sessionID string) {
	e.mu.Lock()
	delete(e.loops, sessionID)
	e.mu.Unlock()
}

func (e *Engine) setStatus(ctx context.Context, sessionID, status string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	session.Status = status
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	return nil
}

// recordModerator appends a moderator message and announces it.
func (e *Engine) recordModerator(ctx context.Context, sessionID, prompt string) error {
	msg := &store.Message{
		ID:              uuid.New().String(),
		SessionID:       sessionID,
		ParticipantID:   store.ModeratorID,
		ParticipantName: "Moderator",
		ParticipantType: store.ModeratorID,
		Content:         prompt,
		CreatedAt:       time.Now(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("recording moderator message: %w", err)
	}
	e.bus.Emit(bus.MessageAdded, sessionID, bus.MessagePayload{
		SessionID:       sessionID,
		MessageID:       msg.ID,
		ParticipantID:   store.ModeratorID,
		ParticipantName: msg.ParticipantName,
		Content:         msg.Content,
	})
	return nil
}

// countSpeakers counts participants eligible for automatic turns.
func countSpeakers(participants []*store.Participant) int {
	n := 0
	for _, p := range participants {
		if p.ID != store.ModeratorID {
			n++
		}
	}
	return n
}
