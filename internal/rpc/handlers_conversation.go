// ABOUTME: Conversation control handlers bridging tool calls to the engine
// ABOUTME: The engine emits the lifecycle events; handlers only validate and route

package rpc

import (
	"context"
	"encoding/json"
)

type startConversationParams struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

func handleStartConversation(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p startConversationParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	if err := d.engine.Start(ctx, p.SessionID, p.Prompt); err != nil {
		return nil, err
	}
	return conversationState(ctx, d, p.SessionID)
}

func handlePauseConversation(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := d.engine.Pause(ctx, p.SessionID); err != nil {
		return nil, err
	}
	return conversationState(ctx, d, p.SessionID)
}

func handleResumeConversation(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := d.engine.Resume(ctx, p.SessionID); err != nil {
		return nil, err
	}
	return conversationState(ctx, d, p.SessionID)
}

func handleStopConversation(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := d.engine.Stop(ctx, p.SessionID); err != nil {
		return nil, err
	}
	return conversationState(ctx, d, p.SessionID)
}

type injectPromptParams struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

func handleInjectPrompt(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p injectPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	if err := d.engine.Inject(ctx, p.SessionID, p.Prompt); err != nil {
		return nil, err
	}
	return conversationState(ctx, d, p.SessionID)
}

// conversationState reports the post-operation view callers poll against.
func conversationState(ctx context.Context, d *Dispatcher, sessionID string) (any, error) {
	session, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	count, err := d.store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id":    session.ID,
		"status":        session.Status,
		"running":       d.engine.Running(sessionID),
		"message_count": count,
	}, nil
}
