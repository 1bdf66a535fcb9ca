// ABOUTME: Tests for the in-memory store
// ABOUTME: Focuses on position assignment and stable participant ordering

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memParticipant(sessionID, name string, position int) *Participant {
	now := time.Now()
	return &Participant{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Name:      name,
		Provider:  "acme",
		Status:    ParticipantActive,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemStore_AssignsDistinctPositions(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	session := &Session{ID: uuid.New().String(), Name: "Seats", Status: SessionIdle}
	require.NoError(t, m.CreateSession(ctx, session))

	alice := memParticipant(session.ID, "Alice", PositionUnassigned)
	bob := memParticipant(session.ID, "Bob", PositionUnassigned)
	require.NoError(t, m.AddParticipant(ctx, alice))
	require.NoError(t, m.AddParticipant(ctx, bob))

	participants, err := m.ListParticipants(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)

	assert.Equal(t, "Alice", participants[0].Name)
	assert.Equal(t, 0, participants[0].Position)
	assert.Equal(t, "Bob", participants[1].Name)
	assert.Equal(t, 1, participants[1].Position)
	assert.NotEqual(t, participants[0].Position, participants[1].Position)
}

func TestMemStore_ListOrderIsStableAcrossCalls(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	session := &Session{ID: uuid.New().String(), Name: "Ring", Status: SessionIdle}
	require.NoError(t, m.CreateSession(ctx, session))

	names := []string{"Alice", "Bob", "Carol", "Dave"}
	for _, name := range names {
		require.NoError(t, m.AddParticipant(ctx, memParticipant(session.ID, name, PositionUnassigned)))
	}

	for i := 0; i < 100; i++ {
		participants, err := m.ListParticipants(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, participants, len(names))
		for j, name := range names {
			assert.Equal(t, name, participants[j].Name, "iteration %d", i)
		}
	}
}

func TestMemStore_ExplicitPositionZeroHonored(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	session := &Session{ID: uuid.New().String(), Name: "Imported", Status: SessionIdle}
	require.NoError(t, m.CreateSession(ctx, session))

	imported := memParticipant(session.ID, "Imported", 0)
	require.NoError(t, m.AddParticipant(ctx, imported))
	got, err := m.GetParticipant(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Position)

	joined := memParticipant(session.ID, "Joined", PositionUnassigned)
	require.NoError(t, m.AddParticipant(ctx, joined))
	got, err = m.GetParticipant(ctx, joined.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)
}
