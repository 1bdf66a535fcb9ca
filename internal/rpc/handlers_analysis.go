// ABOUTME: Analysis, export, and error-tracking handlers
// ABOUTME: Live analysis delegates to the analyzer; export assembles documents

package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/export"
	"github.com/2389/symposium/internal/store"
)

func handleAnalyze(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	// The analyzer appends the snapshot and emits its event
	return d.analyzer.Analyze(ctx, p.SessionID)
}

type getAnalysisHistoryParams struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit,omitempty"`
}

func handleGetAnalysisHistory(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p getAnalysisHistoryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	snapshots, err := d.store.ListSnapshots(ctx, p.SessionID, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"snapshots": snapshots}, nil
}

type saveAnalysisSnapshotParams struct {
	SessionID string                 `json:"session_id"`
	Snapshot  store.AnalysisSnapshot `json:"snapshot"`
}

func handleSaveAnalysisSnapshot(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p saveAnalysisSnapshotParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	if _, err := d.store.GetSession(ctx, p.SessionID); err != nil {
		return nil, err
	}

	snap := p.Snapshot
	snap.SessionID = p.SessionID
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	if err := d.store.AppendSnapshot(ctx, &snap); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.AnalysisSnapshotSaved, p.SessionID, bus.AnalysisPayload{
		SessionID:  p.SessionID,
		SnapshotID: snap.ID,
		Snapshot:   &snap,
	})
	return &snap, nil
}

func handleClearAnalysisHistory(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
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
	if err := d.store.ClearSnapshots(ctx, p.SessionID); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.AnalysisCleared, p.SessionID, bus.AnalysisPayload{SessionID: p.SessionID})
	return map[string]any{"cleared": true, "session_id": p.SessionID}, nil
}

type exportSessionParams struct {
	SessionID string `json:"session_id"`
	// Format selects "json" (default, full document) or "csv" (message rows).
	Format string `json:"format,omitempty"`
}

func handleExportSession(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p exportSessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}

	switch p.Format {
	case "", "json":
		return export.Session(ctx, d.store, p.SessionID)
	case "csv":
		csvText, err := export.MessagesCSV(ctx, d.store, p.SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": "csv", "content": csvText}, nil
	default:
		return nil, invalidParams("unsupported format: " + p.Format)
	}
}

type logAPIErrorParams struct {
	SessionID     string `json:"session_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	Provider      string `json:"provider"`
	Operation     string `json:"operation"`
	Message       string `json:"message"`
	Attempt       int    `json:"attempt,omitempty"`
	MaxAttempts   int    `json:"max_attempts,omitempty"`
}

func handleLogAPIError(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p logAPIErrorParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Provider == "" {
		return nil, invalidParams("provider is required")
	}
	if p.Message == "" {
		return nil, invalidParams("message is required")
	}

	apiErr := &store.APIError{
		ID:            uuid.New().String(),
		SessionID:     p.SessionID,
		ParticipantID: p.ParticipantID,
		Provider:      p.Provider,
		Operation:     p.Operation,
		Message:       p.Message,
		Attempt:       p.Attempt,
		MaxAttempts:   p.MaxAttempts,
		CreatedAt:     time.Now(),
	}
	if err := d.store.AppendAPIError(ctx, apiErr); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.APIErrorLogged, p.SessionID, bus.APIErrorPayload{
		SessionID:     p.SessionID,
		ParticipantID: p.ParticipantID,
		Provider:      p.Provider,
		Operation:     p.Operation,
		Attempt:       p.Attempt,
		MaxAttempts:   p.MaxAttempts,
	})
	return apiErr, nil
}

type getAPIErrorsParams struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit,omitempty"`
}

func handleGetAPIErrors(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p getAPIErrorsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidParams("session_id is required")
	}
	apiErrors, err := d.store.ListAPIErrors(ctx, p.SessionID, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"errors": apiErrors}, nil
}

func handleClearAPIErrors(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := d.store.ClearAPIErrors(ctx, p.SessionID); err != nil {
		return nil, err
	}

	d.bus.Emit(bus.APIErrorsCleared, p.SessionID, bus.APIErrorPayload{SessionID: p.SessionID})
	return map[string]any{"cleared": true, "session_id": p.SessionID}, nil
}
