// ABOUTME: Participant lifecycle handlers: add, update, status change, remove
// ABOUTME: Removal is refused while the participant has a turn in flight

package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/store"
)

// validParticipantStatus is the closed set accepted on status updates.
var validParticipantStatus = map[string]bool{
	store.ParticipantActive:       true,
	store.ParticipantThinking:     true,
	store.ParticipantIdle:         true,
	store.ParticipantError:        true,
	store.ParticipantDisconnected: true,
}

type addParticipantParams struct {
	SessionID    string                    `json:"session_id"`
	Name         string                    `json:"name"`
	Provider     string                    `json:"provider"`
	Model        string                    `json:"model"`
	SystemPrompt string                    `json:"system_prompt,omitempty"`
	Settings     *store.GenerationSettings `json:"settings,omitempty"`
}

func handleAddParticipant(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p addParticipantParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, invalidParams("name is required")
	}
	if p.Provider == "" {
		return nil, invalidParams("provider is required")
	}

	// The session must exist before a participant can join it
	if _, err := d.store.GetSession(ctx, p.SessionID); err != nil {
		return nil, err
	}

	participant := &store.Participant{
		ID:           uuid.New().String(),
		SessionID:    p.SessionID,
		Name:         p.Name,
		Provider:     p.Provider,
		Model:        p.Model,
		Status:       store.ParticipantActive,
		SystemPrompt: p.SystemPrompt,
		// The store assigns the next position under its own lock, so two
		// concurrent adds cannot end up sharing a turn slot
		Position: store.PositionUnassigned,
	}
	if p.Settings != nil {
		participant.Settings = *p.Settings
	}
	if err := d.store.AddParticipant(ctx, participant); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.ParticipantAdded, p.SessionID, bus.ParticipantPayload{
		SessionID:     p.SessionID,
		ParticipantID: participant.ID,
		Name:          participant.Name,
		Status:        participant.Status,
	})
	return participant, nil
}

func handleListParticipants(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	participants, err := d.store.ListParticipants(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"participants": participants}, nil
}

type updateParticipantParams struct {
	ParticipantID string                    `json:"participant_id"`
	Name          *string                   `json:"name,omitempty"`
	Provider      *string                   `json:"provider,omitempty"`
	Model         *string                   `json:"model,omitempty"`
	SystemPrompt  *string                   `json:"system_prompt,omitempty"`
	Settings      *store.GenerationSettings `json:"settings,omitempty"`
}

func handleUpdateParticipant(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p updateParticipantParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ParticipantID == "" {
		return nil, invalidParams("participant_id is required")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, invalidParams("name must not be empty")
	}

	participant, err := d.store.GetParticipant(ctx, p.ParticipantID)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		participant.Name = *p.Name
	}
	if p.Provider != nil {
		participant.Provider = *p.Provider
	}
	if p.Model != nil {
		participant.Model = *p.Model
	}
	if p.SystemPrompt != nil {
		participant.SystemPrompt = *p.SystemPrompt
	}
	if p.Settings != nil {
		participant.Settings = *p.Settings
	}
	if err := d.store.UpdateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.ParticipantUpdated, participant.SessionID, bus.ParticipantPayload{
		SessionID:     participant.SessionID,
		ParticipantID: participant.ID,
		Name:          participant.Name,
		Status:        participant.Status,
	})
	return participant, nil
}

type updateParticipantStatusParams struct {
	ParticipantID string `json:"participant_id"`
	Status        string `json:"status"`
}

func handleUpdateParticipantStatus(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p updateParticipantStatusParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ParticipantID == "" {
		return nil, invalidParams("participant_id is required")
	}
	if !validParticipantStatus[p.Status] {
		return nil, invalidParams("invalid status: " + p.Status)
	}

	participant, err := d.store.GetParticipant(ctx, p.ParticipantID)
	if err != nil {
		return nil, err
	}
	participant.Status = p.Status
	if err := d.store.UpdateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.ParticipantUpdated, participant.SessionID, bus.ParticipantPayload{
		SessionID:     participant.SessionID,
		ParticipantID: participant.ID,
		Name:          participant.Name,
		Status:        participant.Status,
	})
	return participant, nil
}

type removeParticipantParams struct {
	ParticipantID string `json:"participant_id"`
}

func handleRemoveParticipant(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p removeParticipantParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ParticipantID == "" {
		return nil, invalidParams("participant_id is required")
	}

	participant, err := d.store.GetParticipant(ctx, p.ParticipantID)
	if err != nil {
		return nil, err
	}
	// Never pull a participant out from under their own turn
	if d.engine.Running(participant.SessionID) && participant.Status == store.ParticipantThinking {
		return nil, invalidParams("participant has a turn in flight")
	}
	if err := d.store.RemoveParticipant(ctx, p.ParticipantID); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.ParticipantRemoved, participant.SessionID, bus.ParticipantPayload{
		SessionID:     participant.SessionID,
		ParticipantID: participant.ID,
		Name:          participant.Name,
	})
	return map[string]any{"removed": true, "participant_id": p.ParticipantID}, nil
}
