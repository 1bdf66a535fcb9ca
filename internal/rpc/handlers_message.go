// ABOUTME: Message handlers: send, read, update, delete, clear
// ABOUTME: Manual sends carry the author's display snapshot like automatic turns

package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/store"
)

type sendMessageParams struct {
	SessionID string `json:"session_id"`
	// ParticipantID defaults to the moderator when omitted, covering
	// human-authored contributions.
	ParticipantID string `json:"participant_id,omitempty"`
	Content       string `json:"content"`
}

func handleSendMessage(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sendMessageParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, invalidParams("content is required")
	}
	if _, err := d.store.GetSession(ctx, p.SessionID); err != nil {
		return nil, err
	}

	name, kind := "Moderator", store.ModeratorID
	participantID := p.ParticipantID
	if participantID == "" {
		participantID = store.ModeratorID
	}
	if participantID != store.ModeratorID {
		participant, err := d.store.GetParticipant(ctx, participantID)
		if err != nil {
			return nil, err
		}
		name, kind = participant.Name, participant.Provider
	}

	msg := &store.Message{
		ID:              uuid.New().String(),
		SessionID:       p.SessionID,
		ParticipantID:   participantID,
		ParticipantName: name,
		ParticipantType: kind,
		Content:         p.Content,
		CreatedAt:       time.Now(),
	}
	if err := d.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.MessageAdded, p.SessionID, bus.MessagePayload{
		SessionID:       p.SessionID,
		MessageID:       msg.ID,
		ParticipantID:   participantID,
		ParticipantName: name,
		Content:         msg.Content,
	})
	return msg, nil
}

type getMessagesParams struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit,omitempty"`
}

func handleGetMessages(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p getMessagesParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	messages, err := d.store.ListMessages(ctx, p.SessionID, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": messages}, nil
}

type updateMessageParams struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

func handleUpdateMessage(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p updateMessageParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.MessageID == "" {
		return nil, invalidParams("message_id is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, invalidParams("content is required")
	}

	msg, err := d.store.GetMessage(ctx, p.MessageID)
	if err != nil {
		return nil, err
	}
	msg.Content = p.Content
	if err := d.store.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.MessageUpdated, msg.SessionID, bus.MessagePayload{
		SessionID:       msg.SessionID,
		MessageID:       msg.ID,
		ParticipantID:   msg.ParticipantID,
		ParticipantName: msg.ParticipantName,
		Content:         msg.Content,
	})
	return msg, nil
}

type messageIDParams struct {
	MessageID string `json:"message_id"`
}

func handleDeleteMessage(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p messageIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.MessageID == "" {
		return nil, invalidParams("message_id is required")
	}

	msg, err := d.store.GetMessage(ctx, p.MessageID)
	if err != nil {
		return nil, err
	}
	if err := d.store.DeleteMessage(ctx, p.MessageID); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.MessageDeleted, msg.SessionID, bus.MessagePayload{
		SessionID: msg.SessionID,
		MessageID: msg.ID,
	})
	return map[string]any{"deleted": true, "message_id": p.MessageID}, nil
}

func handleClearMessages(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if _, err := d.store.GetSession(ctx, p.SessionID); err != nil {
		return nil, err
	}
	if err := d.store.ClearMessages(ctx, p.SessionID); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.MessagesCleared, p.SessionID, bus.MessagePayload{SessionID: p.SessionID})
	return map[string]any{"cleared": true, "session_id": p.SessionID}, nil
}
