// ABOUTME: Per-session turn loop: round-robin scheduling, context assembly, retries
// ABOUTME: Observes pause/stop between turns; completion and error-rate halts live here

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/model"
	"github.com/2389/symposium/internal/store"
)

// errorRateMinTurns is the minimum number of attempted turns before the
// error-rate threshold is evaluated. Below this, a single failure would
// always exceed any fractional threshold.
const errorRateMinTurns = 10

// loop drives one session's automatic turns. At most one turn is in flight
// at any moment; pause and stop take effect at turn boundaries.
type loop struct {
	engine    *Engine
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func newLoop(e *Engine, session *store.Session) *loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &loop{
		engine:    e,
		sessionID: session.ID,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// pause flags the loop to hold before its next turn. Returns false if
// already paused.
func (l *loop) pause() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		return false
	}
	l.paused = true
	l.resumeCh = make(chan struct{})
	return true
}

// resume releases a paused loop. Returns false if not paused.
func (l *loop) resume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		return false
	}
	l.paused = false
	close(l.resumeCh)
	l.resumeCh = nil
	return true
}

func (l *loop) isPaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

func (l *loop) stop() {
	l.cancel()
	// Release a paused loop so run() can observe the cancellation
	l.resume()
}

// waitWhilePaused blocks until the loop is resumed or stopped. Returns
// false when the loop context is done.
func (l *loop) waitWhilePaused() bool {
	for {
		l.mu.Lock()
		paused, ch := l.paused, l.resumeCh
		l.mu.Unlock()
		if !paused {
			return l.ctx.Err() == nil
		}
		select {
		case <-l.ctx.Done():
			return false
		case <-ch:
		}
	}
}

// run is the loop goroutine. It exits on stop, completion, or error-rate
// halt; the registry entry is cleared before the status transition so loop
// liveness and persisted status stay consistent.
func (l *loop) run() {
	defer close(l.done)

	e := l.engine
	logger := e.logger.With("session_id", l.sessionID)

	next := 0
	round := 1
	attempted := 0
	failed := 0

	for {
		if !l.waitWhilePaused() {
			return
		}

		// Settings are reloaded every turn so mid-conversation edits to the
		// moderator limits take effect without a restart.
		session, err := e.store.GetSession(l.ctx, l.sessionID)
		if err != nil {
			logger.Error("reloading session", "error", err)
			l.halt(logger, fmt.Sprintf("session reload failed: %v", err))
			return
		}

		count, err := e.store.CountMessages(l.ctx, l.sessionID)
		if err != nil {
			logger.Error("counting messages", "error", err)
			l.halt(logger, fmt.Sprintf("message count failed: %v", err))
			return
		}
		if max := session.Moderator.MaxMessages; max > 0 && count >= max {
			l.complete(logger)
			return
		}

		participants, err := e.store.ListParticipants(l.ctx, l.sessionID)
		if err != nil {
			logger.Error("reloading participants", "error", err)
			l.halt(logger, fmt.Sprintf("participant reload failed: %v", err))
			return
		}
		speaker, idx, wrapped := pickSpeaker(participants, next)
		if speaker == nil {
			l.halt(logger, "no participant available for a turn")
			return
		}
		if wrapped {
			round++
		}
		next = idx + 1

		attempted++
		if err := l.takeTurn(session, speaker, round); err != nil {
			if l.ctx.Err() != nil {
				return
			}
			failed++
			logger.Warn("turn failed",
				"participant_id", speaker.ID,
				"participant", speaker.Name,
				"round", round,
				"error", err)
		}

		if threshold := session.Moderator.ErrorRateThreshold; threshold > 0 && attempted >= errorRateMinTurns {
			rate := float64(failed) / float64(attempted)
			if rate > threshold {
				l.halt(logger, fmt.Sprintf("error rate %.2f exceeded threshold %.2f", rate, threshold))
				return
			}
		}
	}
}

// pickSpeaker returns the next eligible participant at or after start,
// treating the slice as a ring. Disconnected participants are skipped.
// wrapped reports whether the scan passed the end of the ring.
func pickSpeaker(participants []*store.Participant, start int) (*store.Participant, int, bool) {
	n := len(participants)
	if n == 0 {
		return nil, 0, false
	}
	wrapped := false
	if start >= n {
		start = 0
		wrapped = true
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		p := participants[idx]
		if p.Status == store.ParticipantDisconnected {
			continue
		}
		return p, idx, wrapped || start+i >= n
	}
	return nil, 0, false
}

// takeTurn runs one participant's turn end to end.
func (l *loop) takeTurn(session *store.Session, p *store.Participant, round int) error {
	e := l.engine

	e.bus.Emit(bus.TurnStarted, l.sessionID, bus.TurnPayload{
		SessionID:     l.sessionID,
		ParticipantID: p.ID,
		Round:         round,
	})

	if err := l.setParticipantStatus(p, store.ParticipantThinking); err != nil {
		return err
	}

	req, err := l.buildRequest(session, p)
	if err != nil {
		l.markError(p)
		return err
	}

	if delay := l.turnDelay(p); delay > 0 {
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case <-time.After(delay):
		}
	}

	started := time.Now()
	resp, err := model.CallWithRetry(l.ctx, e.gateway, req, e.policy, e.timeout, e.logger,
		func(attempt int, attemptErr error) {
			l.recordAPIError(p, attempt, attemptErr)
		})
	if err != nil {
		l.markError(p)
		return err
	}

	msg := &store.Message{
		ID:              uuid.New().String(),
		SessionID:       l.sessionID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		ParticipantType: p.Provider,
		Content:         resp.Content,
		Generation: &store.GenerationInfo{
			Temperature:  p.Settings.Temperature,
			MaxTokens:    p.Settings.MaxTokens,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			LatencyMS:    time.Since(started).Milliseconds(),
		},
		CreatedAt: time.Now(),
	}
	if err := e.store.AppendMessage(l.ctx, msg); err != nil {
		l.markError(p)
		return fmt.Errorf("appending message: %w", err)
	}

	if err := l.setParticipantStatus(p, store.ParticipantActive); err != nil {
		return err
	}

	e.bus.Emit(bus.MessageAdded, l.sessionID, bus.MessagePayload{
		SessionID:       l.sessionID,
		MessageID:       msg.ID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		Content:         msg.Content,
	})
	e.bus.Emit(bus.TurnCompleted, l.sessionID, bus.TurnPayload{
		SessionID:     l.sessionID,
		ParticipantID: p.ID,
		Round:         round,
	})
	return nil
}

// buildRequest assembles the participant's view of the conversation: the
// most recent context-window messages, own contributions as assistant turns,
// everyone else's prefixed with the speaker's name as user turns.
func (l *loop) buildRequest(session *store.Session, p *store.Participant) (model.CallRequest, error) {
	window := session.Moderator.ContextWindow
	history, err := l.engine.store.ListMessages(l.ctx, l.sessionID, window)
	if err != nil {
		return model.CallRequest{}, fmt.Errorf("loading context: %w", err)
	}

	messages := make([]model.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.ParticipantID == p.ID {
			messages = append(messages, model.ChatMessage{
				Role:    model.RoleAssistant,
				Content: m.Content,
			})
			continue
		}
		messages = append(messages, model.ChatMessage{
			Role:    model.RoleUser,
			Content: model.FormatSpeaker(m.ParticipantName, m.Content),
		})
	}

	return model.CallRequest{
		Provider:     p.Provider,
		Model:        p.Model,
		Messages:     model.MergeAlternating(messages),
		Temperature:  p.Settings.Temperature,
		MaxTokens:    p.Settings.MaxTokens,
		SystemPrompt: p.SystemPrompt,
	}, nil
}

func (l *loop) turnDelay(p *store.Participant) time.Duration {
	if p.Settings.ResponseDelay > 0 {
		return p.Settings.ResponseDelay
	}
	return l.engine.delay
}

func (l *loop) setParticipantStatus(p *store.Participant, status string) error {
	current, err := l.engine.store.GetParticipant(l.ctx, p.ID)
	if err != nil {
		return fmt.Errorf("loading participant: %w", err)
	}
	current.Status = status
	if err := l.engine.store.UpdateParticipant(l.ctx, current); err != nil {
		return fmt.Errorf("updating participant status: %w", err)
	}
	l.engine.bus.Emit(bus.ParticipantUpdated, l.sessionID, bus.ParticipantPayload{
		SessionID:     l.sessionID,
		ParticipantID: p.ID,
		Name:          p.Name,
		Status:        status,
	})
	return nil
}

// markError flags a participant after exhausted retries; the next round
// still schedules them so a recovered provider rejoins automatically.
func (l *loop) markError(p *store.Participant) {
	if l.ctx.Err() != nil {
		return
	}
	if err := l.setParticipantStatus(p, store.ParticipantError); err != nil {
		l.engine.logger.Warn("marking participant error",
			"participant_id", p.ID, "error", err)
	}
}

// recordAPIError persists one failed attempt for the audit trail.
func (l *loop) recordAPIError(p *store.Participant, attempt int, attemptErr error) {
	e := l.engine
	apiErr := &store.APIError{
		ID:            uuid.New().String(),
		SessionID:     l.sessionID,
		ParticipantID: p.ID,
		Provider:      p.Provider,
		Operation:     "completion",
		Message:       attemptErr.Error(),
		Attempt:       attempt,
		MaxAttempts:   e.policy.MaxAttempts,
		CreatedAt:     time.Now(),
	}
	// Recorded outside the loop context so a mid-stop failure still lands
	if err := e.store.AppendAPIError(context.Background(), apiErr); err != nil {
		e.logger.Warn("recording api error", "error", err)
		return
	}
	e.bus.Emit(bus.APIErrorLogged, l.sessionID, bus.APIErrorPayload{
		SessionID:     l.sessionID,
		ParticipantID: p.ID,
		Provider:      p.Provider,
		Operation:     apiErr.Operation,
		Attempt:       attempt,
		MaxAttempts:   apiErr.MaxAttempts,
	})
}

// complete finishes a session that reached its message limit.
func (l *loop) complete(logger *slog.Logger) {
	e := l.engine
	e.remove(l.sessionID)
	if err := e.setStatus(context.Background(), l.sessionID, store.SessionCompleted); err != nil {
		e.logger.Error("marking session completed", "session_id", l.sessionID, "error", err)
	}
	e.bus.Emit(bus.ConversationCompleted, l.sessionID, bus.SessionPayload{
		SessionID: l.sessionID,
		Status:    store.SessionCompleted,
	})
	logger.Info("conversation completed")
}

// halt stops the loop on an unrecoverable condition and marks the session.
func (l *loop) halt(logger *slog.Logger, reason string) {
	e := l.engine
	e.remove(l.sessionID)
	if l.ctx.Err() != nil {
		// Stop already owns the status transition
		return
	}
	if err := e.setStatus(context.Background(), l.sessionID, store.SessionError); err != nil {
		e.logger.Error("marking session error", "session_id", l.sessionID, "error", err)
	}
	e.bus.Emit(bus.ConversationError, l.sessionID, bus.SessionPayload{
		SessionID: l.sessionID,
		Status:    store.SessionError,
	})
	logger.Error("conversation halted", "reason", reason)
}
