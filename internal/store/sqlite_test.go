// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Verifies session/participant/message lifecycle, cascades, and message counts

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSession() *Session {
	now := time.Now()
	return &Session{
		ID:     uuid.New().String(),
		Name:   "Test Session",
		Status: SessionIdle,
		Moderator: ModeratorSettings{
			MaxMessages:        50,
			ErrorRateThreshold: 0.5,
			ContextWindow:      10,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestParticipant(sessionID, name string) *Participant {
	now := time.Now()
	return &Participant{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Name:      name,
		Provider:  "claude",
		Model:     "claude-sonnet-4",
		Status:    ParticipantIdle,
		Settings: GenerationSettings{
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Position:  PositionUnassigned,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))

	// Duplicate creation is rejected
	err := s.CreateSession(ctx, session)
	assert.ErrorIs(t, err, ErrDuplicateSession)

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Name, got.Name)
	assert.Equal(t, SessionIdle, got.Status)
	assert.Equal(t, 50, got.Moderator.MaxMessages)
	assert.InDelta(t, 0.5, got.Moderator.ErrorRateThreshold, 1e-9)

	got.Status = SessionActive
	got.Description = "updated"
	require.NoError(t, s.UpdateSession(ctx, got))

	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionActive, got.Status)
	assert.Equal(t, "updated", got.Description)

	require.NoError(t, s.DeleteSession(ctx, session.ID))
	_, err = s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again reports not found
	assert.ErrorIs(t, s.DeleteSession(ctx, session.ID), ErrNotFound)
}

func TestSQLiteStore_ListSessionsFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	active := newTestSession()
	active.Status = SessionActive
	require.NoError(t, s.CreateSession(ctx, active))

	idle := newTestSession()
	require.NoError(t, s.CreateSession(ctx, idle))

	all, err := s.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := s.ListSessions(ctx, SessionFilter{Status: SessionActive})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)
}

func TestSQLiteStore_ParticipantOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))

	first := newTestParticipant(session.ID, "Alice")
	second := newTestParticipant(session.ID, "Bob")
	third := newTestParticipant(session.ID, "Carol")
	require.NoError(t, s.AddParticipant(ctx, first))
	require.NoError(t, s.AddParticipant(ctx, second))
	require.NoError(t, s.AddParticipant(ctx, third))

	participants, err := s.ListParticipants(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)

	// Insertion order is preserved, with every participant on a distinct
	// position so round-robin selection never depends on a sort tie
	assert.Equal(t, "Alice", participants[0].Name)
	assert.Equal(t, 0, participants[0].Position)
	assert.Equal(t, "Bob", participants[1].Name)
	assert.Equal(t, 1, participants[1].Position)
	assert.Equal(t, "Carol", participants[2].Name)
	assert.Equal(t, 2, participants[2].Position)

	// Removing the middle participant keeps relative order
	require.NoError(t, s.RemoveParticipant(ctx, second.ID))
	participants, err = s.ListParticipants(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "Alice", participants[0].Name)
	assert.Equal(t, "Carol", participants[1].Name)
}

func TestSQLiteStore_ExplicitPositionZeroHonored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))

	// An imported participant carries its original position, including 0
	imported := newTestParticipant(session.ID, "Imported")
	imported.Position = 0
	require.NoError(t, s.AddParticipant(ctx, imported))

	got, err := s.GetParticipant(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Position)

	// A subsequent unassigned add lands after it, not on top of it
	next := newTestParticipant(session.ID, "Joined")
	require.NoError(t, s.AddParticipant(ctx, next))
	got, err = s.GetParticipant(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)
}

func TestSQLiteStore_AppendMessageBumpsCount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))
	p := newTestParticipant(session.ID, "Alice")
	require.NoError(t, s.AddParticipant(ctx, p))

	msg := &Message{
		ID:              uuid.New().String(),
		SessionID:       session.ID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		ParticipantType: p.Provider,
		Content:         "hello",
		Generation: &GenerationInfo{
			Temperature:  0.7,
			InputTokens:  100,
			OutputTokens: 20,
			LatencyMS:    1234,
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.AppendMessage(ctx, msg))

	got, err := s.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)

	stored, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Generation)
	assert.Equal(t, 100, stored.Generation.InputTokens)
	assert.Equal(t, int64(1234), stored.Generation.LatencyMS)

	// Moderator messages don't touch any participant row
	modMsg := &Message{
		ID:              uuid.New().String(),
		SessionID:       session.ID,
		ParticipantID:   ModeratorID,
		ParticipantName: "Moderator",
		ParticipantType: "moderator",
		Content:         "Let's begin",
		CreatedAt:       time.Now(),
	}
	require.NoError(t, s.AppendMessage(ctx, modMsg))

	count, err := s.CountMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Deleting a participant message decrements the count
	require.NoError(t, s.DeleteMessage(ctx, msg.ID))
	got, err = s.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
}

func TestSQLiteStore_ListMessagesWindow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))
	p := newTestParticipant(session.ID, "Alice")
	require.NoError(t, s.AddParticipant(ctx, p))

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:              uuid.New().String(),
			SessionID:       session.ID,
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
			ParticipantType: p.Provider,
			Content:         string(rune('a' + i)),
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendMessage(ctx, msg))
	}

	// Full history, oldest first
	all, err := s.ListMessages(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "a", all[0].Content)
	assert.Equal(t, "e", all[4].Content)

	// Windowed to the most recent 2, still oldest first
	tail, err := s.ListMessages(ctx, session.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "d", tail[0].Content)
	assert.Equal(t, "e", tail[1].Content)
}

func TestSQLiteStore_ClearMessagesResetsCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))
	p := newTestParticipant(session.ID, "Alice")
	require.NoError(t, s.AddParticipant(ctx, p))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendMessage(ctx, &Message{
			ID:              uuid.New().String(),
			SessionID:       session.ID,
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
			ParticipantType: p.Provider,
			Content:         "x",
			CreatedAt:       time.Now(),
		}))
	}

	require.NoError(t, s.ClearMessages(ctx, session.ID))

	count, err := s.CountMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	got, err := s.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
}

func TestSQLiteStore_DeleteSessionCascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))
	p := newTestParticipant(session.ID, "Alice")
	require.NoError(t, s.AddParticipant(ctx, p))
	require.NoError(t, s.AppendMessage(ctx, &Message{
		ID:              uuid.New().String(),
		SessionID:       session.ID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		ParticipantType: p.Provider,
		Content:         "hello",
		CreatedAt:       time.Now(),
	}))
	require.NoError(t, s.AppendSnapshot(ctx, &AnalysisSnapshot{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Topics:    []string{"ethics"},
		Phase:     "opening",
		CreatedAt: time.Now(),
	}))

	require.NoError(t, s.DeleteSession(ctx, session.ID))

	_, err := s.GetParticipant(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(ctx, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	snaps, err := s.ListSnapshots(ctx, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSQLiteStore_SnapshotTimeline(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := newTestSession()
	require.NoError(t, s.CreateSession(ctx, session))

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendSnapshot(ctx, &AnalysisSnapshot{
			ID:               uuid.New().String(),
			SessionID:        session.ID,
			MessageCount:     i,
			ParticipantCount: 2,
			Topics:           []string{"topic"},
			Themes:           []string{"theme"},
			Depth:            "surface",
			Phase:            "exploration",
			CreatedAt:        base.Add(time.Duration(i) * time.Second),
		}))
	}

	snaps, err := s.ListSnapshots(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 0, snaps[0].MessageCount)
	assert.Equal(t, 2, snaps[2].MessageCount)
	assert.Equal(t, []string{"topic"}, snaps[0].Topics)

	require.NoError(t, s.ClearSnapshots(ctx, session.ID))
	snaps, err = s.ListSnapshots(ctx, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSQLiteStore_APIErrorTrail(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sessionID := uuid.New().String()
	base := time.Now()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendAPIError(ctx, &APIError{
			ID:          uuid.New().String(),
			SessionID:   sessionID,
			Provider:    "claude",
			Operation:   "completion",
			Message:     "rate limited",
			Attempt:     i,
			MaxAttempts: 3,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	errs, err := s.ListAPIErrors(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	// Newest first
	assert.Equal(t, 3, errs[0].Attempt)

	errs, err = s.ListAPIErrors(ctx, sessionID, 1)
	require.NoError(t, err)
	require.Len(t, errs, 1)

	require.NoError(t, s.ClearAPIErrors(ctx, sessionID))
	errs, err = s.ListAPIErrors(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, errs)
}
