// ABOUTME: Session lifecycle handlers: create, read, update, delete, duplicate, import
// ABOUTME: Each validates its typed params fully before any store write

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/export"
	"github.com/2389/symposium/internal/store"
)

type createSessionParams struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Template    string                   `json:"template"`
	Moderator   *store.ModeratorSettings `json:"moderator,omitempty"`
}

func handleCreateSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p createSessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, invalidParams("name is required")
	}

	session := &store.Session{
		ID:          uuid.New().String(),
		Name:        p.Name,
		Description: p.Description,
		Template:    p.Template,
		Status:      store.SessionIdle,
		Moderator:   d.defaults,
	}
	if p.Moderator != nil {
		session.Moderator = *p.Moderator
	}
	if err := d.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	d.setCurrentSession(session.ID)
	d.bus.Emit(bus.SessionCreated, session.ID, bus.SessionPayload{
		SessionID: session.ID,
		Name:      session.Name,
		Status:    session.Status,
	})
	return session, nil
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func (p sessionIDParams) validate() error {
	if p.SessionID == "" {
		return invalidParams("session_id is required")
	}
	return nil
}

func handleGetSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return d.store.GetSession(ctx, p.SessionID)
}

type listSessionsParams struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func handleListSessions(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p listSessionsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sessions, err := d.store.ListSessions(ctx, store.SessionFilter{Status: p.Status, Limit: p.Limit})
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessions": sessions}, nil
}

type updateSessionParams struct {
	SessionID   string                   `json:"session_id"`
	Name        *string                  `json:"name,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Moderator   *store.ModeratorSettings `json:"moderator,omitempty"`
}

func handleUpdateSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p updateSessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, invalidParams("name must not be empty")
	}

	session, err := d.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		session.Name = *p.Name
	}
	if p.Description != nil {
		session.Description = *p.Description
	}
	if p.Moderator != nil {
		session.Moderator = *p.Moderator
	}
	if err := d.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.SessionUpdated, session.ID, bus.SessionPayload{
		SessionID: session.ID,
		Name:      session.Name,
		Status:    session.Status,
	})
	return session, nil
}

func handleDeleteSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	// Halt any live loop before the rows disappear underneath it
	if err := d.engine.Stop(ctx, p.SessionID); err != nil {
		return nil, err
	}
	if err := d.store.DeleteSession(ctx, p.SessionID); err != nil {
		return nil, err
	}

	d.clearCurrentIf(p.SessionID)
	d.bus.Emit(bus.SessionDeleted, p.SessionID, bus.SessionPayload{SessionID: p.SessionID})
	return map[string]any{"deleted": true, "session_id": p.SessionID}, nil
}

type duplicateSessionParams struct {
	SessionID string `json:"session_id"`
	// NewID supports caller-side idempotent retries: resending the same id
	// surfaces a duplicate error instead of a second copy.
	NewID   string `json:"new_id,omitempty"`
	Name    string `json:"name,omitempty"`
	// WithMessages copies history as well as configuration.
	WithMessages bool `json:"with_messages,omitempty"`
}

func handleDuplicateSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p duplicateSessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}

	source, err := d.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	participants, err := d.store.ListParticipants(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}

	copyID := p.NewID
	if copyID == "" {
		copyID = uuid.New().String()
	}
	name := p.Name
	if name == "" {
		name = source.Name + " (copy)"
	}

	dup := &store.Session{
		ID:          copyID,
		Name:        name,
		Description: source.Description,
		Template:    source.Template,
		Status:      store.SessionIdle,
		Moderator:   source.Moderator,
	}
	if err := d.store.CreateSession(ctx, dup); err != nil {
		return nil, err
	}
	// Old participant id -> cloned id, so copied history stays attached
	idMap := map[string]string{store.ModeratorID: store.ModeratorID}
	for _, part := range participants {
		clone := *part
		clone.ID = uuid.New().String()
		clone.SessionID = copyID
		clone.Status = store.ParticipantActive
		clone.MessageCount = 0
		if err := d.store.AddParticipant(ctx, &clone); err != nil {
			return nil, err
		}
		idMap[part.ID] = clone.ID
	}
	if p.WithMessages {
		messages, err := d.store.ListMessages(ctx, p.SessionID, 0)
		if err != nil {
			return nil, err
		}
		for _, msg := range messages {
			clone := *msg
			clone.ID = uuid.New().String()
			clone.SessionID = copyID
			if mapped, ok := idMap[msg.ParticipantID]; ok {
				clone.ParticipantID = mapped
			} else {
				// Author since removed; the display snapshot on the
				// message still names them
				clone.ParticipantID = store.ModeratorID
			}
			if err := d.store.AppendMessage(ctx, &clone); err != nil {
				return nil, err
			}
		}
	}

	d.bus.Emit(bus.SessionCreated, copyID, bus.SessionPayload{
		SessionID: copyID,
		Name:      dup.Name,
		Status:    dup.Status,
	})
	return dup, nil
}

type importSessionParams struct {
	Document export.Document `json:"document"`
}

func handleImportSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p importSessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	doc := p.Document
	if doc.Session == nil {
		return nil, invalidParams("document.session is required")
	}
	if strings.TrimSpace(doc.Session.Name) == "" {
		return nil, invalidParams("document.session.name is required")
	}

	session := *doc.Session
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	// Imported sessions always land idle; a loop only starts via
	// start_conversation
	session.Status = store.SessionIdle
	if err := d.store.CreateSession(ctx, &session); err != nil {
		return nil, err
	}
	for _, part := range doc.Participants {
		clone := *part
		clone.SessionID = session.ID
		if clone.ID == "" {
			clone.ID = uuid.New().String()
		}
		if err := d.store.AddParticipant(ctx, &clone); err != nil {
			return nil, err
		}
	}
	for _, msg := range doc.Messages {
		clone := *msg
		clone.SessionID = session.ID
		if clone.ID == "" {
			clone.ID = uuid.New().String()
		}
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		if err := d.store.AppendMessage(ctx, &clone); err != nil {
			return nil, err
		}
	}
	for _, snap := range doc.Analysis {
		clone := *snap
		clone.SessionID = session.ID
		if clone.ID == "" {
			clone.ID = uuid.New().String()
		}
		if err := d.store.AppendSnapshot(ctx, &clone); err != nil {
			return nil, err
		}
	}

	d.bus.Emit(bus.SessionCreated, session.ID, bus.SessionPayload{
		SessionID: session.ID,
		Name:      session.Name,
		Status:    session.Status,
	})
	return &session, nil
}

func handleSwitchCurrentSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	session, err := d.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}

	d.setCurrentSession(session.ID)
	d.bus.Emit(bus.SessionSwitched, session.ID, bus.SessionPayload{
		SessionID: session.ID,
		Name:      session.Name,
		Status:    session.Status,
	})
	return session, nil
}

func handleGetCurrentSession(ctx context.Context, d *Dispatcher, _ json.RawMessage) (any, error) {
	id := d.CurrentSession()
	if id == "" {
		return map[string]any{"session": nil}, nil
	}
	session, err := d.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": session}, nil
}
