// ABOUTME: Session export as a self-contained JSON document or CSV rows
// ABOUTME: Read-only assembly from the store; also the import counterpart's shape

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/2389/symposium/internal/store"
)

// Document is a complete portable session: everything needed to rebuild it
// elsewhere via import_session.
type Document struct {
	ExportedAt   time.Time                 `json:"exported_at"`
	Session      *store.Session            `json:"session"`
	Participants []*store.Participant      `json:"participants"`
	Messages     []*store.Message          `json:"messages"`
	Analysis     []*store.AnalysisSnapshot `json:"analysis,omitempty"`
}

// Session assembles the full export document for one session.
func Session(ctx context.Context, st store.Store, sessionID string) (*Document, error) {
	session, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	participants, err := st.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}
	messages, err := st.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	snapshots, err := st.ListSnapshots(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading analysis: %w", err)
	}
	return &Document{
		ExportedAt:   time.Now(),
		Session:      session,
		Participants: participants,
		Messages:     messages,
		Analysis:     snapshots,
	}, nil
}

// MessagesCSV renders a session's messages as CSV, one row per message,
// oldest first.
func MessagesCSV(ctx context.Context, st store.Store, sessionID string) (string, error) {
	messages, err := st.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return "", fmt.Errorf("loading messages: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "participant", "type", "content", "input_tokens", "output_tokens"}); err != nil {
		return "", err
	}
	for _, m := range messages {
		inTok, outTok := "", ""
		if m.Generation != nil {
			inTok = strconv.Itoa(m.Generation.InputTokens)
			outTok = strconv.Itoa(m.Generation.OutputTokens)
		}
		row := []string{
			m.CreatedAt.Format(time.RFC3339),
			m.ParticipantName,
			m.ParticipantType,
			m.Content,
			inTok,
			outTok,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
