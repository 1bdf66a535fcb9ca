// ABOUTME: Tests for the conversation analyzer
// ABOUTME: Covers JSON parsing, fenced replies, and the heuristic fallback

package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/model"
	"github.com/2389/symposium/internal/store"
)

func seedConversation(t *testing.T, st store.Store) string {
	t.Helper()
	ctx := context.Background()
	session := &store.Session{
		ID:     uuid.New().String(),
		Name:   "Analyzed",
		Status: store.SessionActive,
	}
	require.NoError(t, st.CreateSession(ctx, session))
	for i, name := range []string{"Alice", "Bob"} {
		require.NoError(t, st.AddParticipant(ctx, &store.Participant{
			ID: uuid.New().String(), SessionID: session.ID, Name: name,
			Provider: "acme", Status: store.ParticipantActive, Position: i,
		}))
	}
	for _, content := range []string{
		"Consciousness might be an emergent property of computation.",
		"I disagree, consciousness requires embodiment and experience.",
		"Perhaps consciousness and computation are not mutually exclusive.",
	} {
		require.NoError(t, st.AppendMessage(ctx, &store.Message{
			ID: uuid.New().String(), SessionID: session.ID,
			ParticipantID: store.ModeratorID, ParticipantName: "Moderator",
			ParticipantType: store.ModeratorID, Content: content,
		}))
	}
	return session.ID
}

func TestAnalyze_ParsesStructuredReply(t *testing.T) {
	st := store.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })
	sessionID := seedConversation(t, st)

	gw := model.NewScriptedGateway(model.Reply(
		"Here is my analysis:\n```json\n" +
			`{"topics":["consciousness"],"themes":["emergence"],"tensions":["embodiment vs computation"],` +
			`"convergences":[],"depth":"deep","phase":"exploration"}` + "\n```"))
	a := New(st, bus.New(nil), gw, nil)

	snap, err := a.Analyze(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, []string{"consciousness"}, snap.Topics)
	assert.Equal(t, []string{"emergence"}, snap.Themes)
	assert.Equal(t, "deep", snap.Depth)
	assert.Equal(t, "exploration", snap.Phase)
	assert.Equal(t, 3, snap.MessageCount)
	assert.Equal(t, 2, snap.ParticipantCount)

	// Snapshot landed on the timeline
	snaps, err := st.ListSnapshots(context.Background(), sessionID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestAnalyze_HeuristicFallbackOnProse(t *testing.T) {
	st := store.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })
	sessionID := seedConversation(t, st)

	gw := model.NewScriptedGateway(model.Reply("I cannot produce JSON today, sorry."))
	a := New(st, bus.New(nil), gw, nil)

	snap, err := a.Analyze(context.Background(), sessionID)
	require.NoError(t, err)

	// "consciousness" appears three times, so heuristics surface it
	assert.Contains(t, snap.Topics, "consciousness")
	assert.Equal(t, "surface", snap.Depth)
	assert.Equal(t, "opening", snap.Phase)
}

func TestAnalyze_HeuristicFallbackOnGatewayFailure(t *testing.T) {
	st := store.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })
	sessionID := seedConversation(t, st)

	gw := model.NewScriptedGateway(model.Fail(
		model.Terminal("acme", "completion", errors.New("no quota"))))
	a := New(st, bus.New(nil), gw, nil)

	snap, err := a.Analyze(context.Background(), sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Topics)
}

func TestAnalyze_EmptySessionRejected(t *testing.T) {
	st := store.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })
	session := &store.Session{ID: uuid.New().String(), Name: "Empty", Status: store.SessionIdle}
	require.NoError(t, st.CreateSession(context.Background(), session))

	a := New(st, bus.New(nil), model.NewScriptedGateway(), nil)
	_, err := a.Analyze(context.Background(), session.ID)
	require.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON(`prefix {"a":1} suffix`))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSON(`{"a":{"b":2}}`))
	assert.Equal(t, "", extractJSON("no json here"))
	assert.Equal(t, "", extractJSON("{unbalanced"))
}
