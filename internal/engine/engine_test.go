// ABOUTME: Tests for the orchestration engine and its turn loop
// ABOUTME: Drives scripted gateways with zero delays through full conversations

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/model"
	"github.com/2389/symposium/internal/store"
)

func newTestEngine(t *testing.T, gw model.Gateway) (*Engine, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })
	b := bus.New(nil)
	e := New(st, b, gw, Options{
		RetryPolicy: model.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			Multiplier:  1.0,
			MaxDelay:    time.Millisecond,
		},
		CallTimeout: 5 * time.Second,
	})
	return e, st
}

// seedSession creates a session with two participants, Alice then Bob.
func seedSession(t *testing.T, st store.Store, moderator store.ModeratorSettings) string {
	t.Helper()
	ctx := context.Background()
	session := &store.Session{
		ID:        uuid.New().String(),
		Name:      "Test Dialogue",
		Status:    store.SessionIdle,
		Moderator: moderator,
	}
	require.NoError(t, st.CreateSession(ctx, session))
	for i, name := range []string{"Alice", "Bob"} {
		require.NoError(t, st.AddParticipant(ctx, &store.Participant{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Name:      name,
			Provider:  "acme",
			Model:     "acme-large",
			Status:    store.ParticipantActive,
			Position:  i,
		}))
	}
	return session.ID
}

func waitForStatus(t *testing.T, st store.Store, sessionID, status string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		session, err := st.GetSession(context.Background(), sessionID)
		require.NoError(t, err)
		if session.Status == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	session, _ := st.GetSession(context.Background(), sessionID)
	t.Fatalf("session never reached %q (currently %q)", status, session.Status)
}

func TestStart_Validation(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t, model.NewScriptedGateway(model.Reply("hi")))
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 4})

	assert.ErrorIs(t, e.Start(ctx, sessionID, "   "), ErrEmptyPrompt)
	assert.ErrorIs(t, e.Start(ctx, "missing", "go"), store.ErrNotFound)

	solo := &store.Session{ID: uuid.New().String(), Name: "Solo", Status: store.SessionIdle}
	require.NoError(t, st.CreateSession(ctx, solo))
	require.NoError(t, st.AddParticipant(ctx, &store.Participant{
		ID: uuid.New().String(), SessionID: solo.ID, Name: "Only", Provider: "acme",
		Status: store.ParticipantActive,
	}))
	assert.ErrorIs(t, e.Start(ctx, solo.ID, "go"), ErrNeedParticipants)
}

func TestStart_RejectsSecondStart(t *testing.T) {
	ctx := context.Background()
	// A gateway that never returns keeps the loop live for the duration
	blocked := gatewayFunc(func(ctx context.Context, _ model.CallRequest) (*model.CallResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e, st := newTestEngine(t, blocked)
	sessionID := seedSession(t, st, store.ModeratorSettings{})

	require.NoError(t, e.Start(ctx, sessionID, "Hello"))
	assert.ErrorIs(t, e.Start(ctx, sessionID, "Hello again"), ErrAlreadyRunning)
	assert.True(t, e.Running(sessionID))

	require.NoError(t, e.Stop(ctx, sessionID))
}

func TestConversation_RunsToCompletion(t *testing.T) {
	ctx := context.Background()
	gw := model.NewScriptedGateway(model.Reply("a thought"))
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 10})

	require.NoError(t, e.Start(ctx, sessionID, "Hello, please discuss."))
	waitForStatus(t, st, sessionID, store.SessionCompleted)
	assert.False(t, e.Running(sessionID))

	messages, err := st.ListMessages(ctx, sessionID, 0)
	require.NoError(t, err)
	// Exactly the limit: the moderator opener plus nine automatic turns
	require.Len(t, messages, 10)

	assert.Equal(t, store.ModeratorID, messages[0].ParticipantID)
	assert.Equal(t, "Hello, please discuss.", messages[0].Content)

	// Strict Alice/Bob alternation in insertion order
	for i, msg := range messages[1:] {
		want := "Alice"
		if i%2 == 1 {
			want = "Bob"
		}
		assert.Equal(t, want, msg.ParticipantName, "message %d", i+1)
		require.NotNil(t, msg.Generation)
		assert.Equal(t, 10, msg.Generation.InputTokens)
	}
}

func TestConversation_ContextAssembly(t *testing.T) {
	ctx := context.Background()
	gw := model.NewScriptedGateway(model.Reply("reply"))
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 3})

	require.NoError(t, e.Start(ctx, sessionID, "Opening question"))
	waitForStatus(t, st, sessionID, store.SessionCompleted)

	require.GreaterOrEqual(t, gw.CallCount(), 2)

	// Alice's first turn sees the moderator opener as a user message
	first := gw.Requests[0]
	assert.Equal(t, "acme", first.Provider)
	require.NotEmpty(t, first.Messages)
	assert.Equal(t, model.RoleUser, first.Messages[0].Role)
	assert.Equal(t, "Moderator: Opening question", first.Messages[0].Content)

	// Bob's turn sees Alice's reply as a user message, not assistant
	second := gw.Requests[1]
	require.Len(t, second.Messages, 1)
	assert.Equal(t, model.RoleUser, second.Messages[0].Role)
	assert.Contains(t, second.Messages[0].Content, "Moderator: Opening question")
	assert.Contains(t, second.Messages[0].Content, "Alice: reply")
}

func TestConversation_SkipsDisconnected(t *testing.T) {
	ctx := context.Background()
	gw := model.NewScriptedGateway(model.Reply("present"))
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 4})

	// Disconnect Bob before starting; also add a third voice so the
	// two-participant floor still holds
	participants, err := st.ListParticipants(ctx, sessionID)
	require.NoError(t, err)
	bob := participants[1]
	bob.Status = store.ParticipantDisconnected
	require.NoError(t, st.UpdateParticipant(ctx, bob))
	require.NoError(t, st.AddParticipant(ctx, &store.Participant{
		ID: uuid.New().String(), SessionID: sessionID, Name: "Carol", Provider: "acme",
		Status: store.ParticipantActive, Position: 2,
	}))

	require.NoError(t, e.Start(ctx, sessionID, "Begin"))
	waitForStatus(t, st, sessionID, store.SessionCompleted)

	messages, err := st.ListMessages(ctx, sessionID, 0)
	require.NoError(t, err)
	for _, msg := range messages[1:] {
		assert.NotEqual(t, "Bob", msg.ParticipantName)
	}
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	turnGate := make(chan struct{}, 1)
	gw := gatewayFunc(func(ctx context.Context, _ model.CallRequest) (*model.CallResponse, error) {
		select {
		case <-turnGate:
			return &model.CallResponse{Content: "gated"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 20})

	require.NoError(t, e.Start(ctx, sessionID, "Hello"))

	require.NoError(t, e.Pause(ctx, sessionID))
	waitForStatus(t, st, sessionID, store.SessionPaused)
	// Pausing again is a quiet no-op
	require.NoError(t, e.Pause(ctx, sessionID))

	// Let the in-flight turn finish; the loop must then hold
	turnGate <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	countBefore, err := st.CountMessages(ctx, sessionID)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	countAfter, err := st.CountMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, countBefore, countAfter, "paused loop must not take turns")

	require.NoError(t, e.Resume(ctx, sessionID))
	waitForStatus(t, st, sessionID, store.SessionActive)
	// Resuming again is a quiet no-op
	require.NoError(t, e.Resume(ctx, sessionID))

	turnGate <- struct{}{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := st.CountMessages(ctx, sessionID)
		require.NoError(t, err)
		if n > countAfter {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, e.Stop(ctx, sessionID))
}

func TestInject_OnlyWhilePaused(t *testing.T) {
	ctx := context.Background()
	gw := gatewayFunc(func(ctx context.Context, _ model.CallRequest) (*model.CallResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{})

	assert.ErrorIs(t, e.Inject(ctx, sessionID, "early"), ErrNotRunning)

	require.NoError(t, e.Start(ctx, sessionID, "Hello"))
	assert.ErrorIs(t, e.Inject(ctx, sessionID, "mid-flight"), ErrNotPaused)

	require.NoError(t, e.Pause(ctx, sessionID))
	assert.ErrorIs(t, e.Inject(ctx, sessionID, ""), ErrEmptyPrompt)
	require.NoError(t, e.Inject(ctx, sessionID, "consider ethics"))

	// Injection resumes the conversation
	waitForStatus(t, st, sessionID, store.SessionActive)

	messages, err := st.ListMessages(ctx, sessionID, 0)
	require.NoError(t, err)
	last := messages[len(messages)-1]
	assert.Equal(t, store.ModeratorID, last.ParticipantID)
	assert.Equal(t, "consider ethics", last.Content)

	require.NoError(t, e.Stop(ctx, sessionID))
}

func TestStop_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := model.NewScriptedGateway(model.Reply("talk"))
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 1000})

	require.NoError(t, e.Start(ctx, sessionID, "Hello"))
	require.NoError(t, e.Stop(ctx, sessionID))
	waitForStatus(t, st, sessionID, store.SessionCompleted)
	assert.False(t, e.Running(sessionID))

	apiErrors, err := st.ListAPIErrors(ctx, sessionID, 0)
	require.NoError(t, err)
	trailBefore := len(apiErrors)

	// Second and third stops are no-ops
	require.NoError(t, e.Stop(ctx, sessionID))
	require.NoError(t, e.Stop(ctx, sessionID))

	// Repeated stops leave the status and the error trail untouched
	session, err := st.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionCompleted, session.Status)
	apiErrors, err = st.ListAPIErrors(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Len(t, apiErrors, trailBefore)
}

func TestErrorRateThreshold_HaltsSession(t *testing.T) {
	ctx := context.Background()
	gw := model.NewScriptedGateway(
		model.Fail(model.Transient("acme", "completion", errors.New("overloaded"))),
	)
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{
		MaxMessages:        100,
		ErrorRateThreshold: 0.1,
	})

	require.NoError(t, e.Start(ctx, sessionID, "Hello"))
	waitForStatus(t, st, sessionID, store.SessionError)
	assert.False(t, e.Running(sessionID))

	// The threshold only applies after ten attempted turns, each of which
	// left one audit record per retry attempt
	apiErrors, err := st.ListAPIErrors(ctx, sessionID, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(apiErrors), 10)
	assert.Equal(t, "acme", apiErrors[0].Provider)
	assert.Equal(t, "completion", apiErrors[0].Operation)
	assert.Equal(t, 2, apiErrors[0].MaxAttempts)

	// The failing participant is flagged
	participants, err := st.ListParticipants(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, store.ParticipantError, participants[0].Status)
}

func TestRestartAfterCompletion_PreservesHistory(t *testing.T) {
	ctx := context.Background()
	gw := model.NewScriptedGateway(model.Reply("round one"))
	e, st := newTestEngine(t, gw)
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 3})

	require.NoError(t, e.Start(ctx, sessionID, "First opener"))
	waitForStatus(t, st, sessionID, store.SessionCompleted)

	// Raise the cap and start again; history carries forward
	session, err := st.GetSession(ctx, sessionID)
	require.NoError(t, err)
	session.Moderator.MaxMessages = 6
	require.NoError(t, st.UpdateSession(ctx, session))

	require.NoError(t, e.Start(ctx, sessionID, "Second opener"))
	waitForStatus(t, st, sessionID, store.SessionCompleted)

	messages, err := st.ListMessages(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 6)
	assert.Equal(t, "First opener", messages[0].Content)
	assert.Equal(t, "Second opener", messages[3].Content)
}

func TestConversationEvents(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	t.Cleanup(func() { _ = st.Close() })
	b := bus.New(nil)

	seen := make(chan bus.EventType, 64)
	b.SubscribeAll(func(e bus.Event) { seen <- e.Type })

	e := New(st, b, model.NewScriptedGateway(model.Reply("hi")), Options{
		RetryPolicy: model.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
	})
	sessionID := seedSession(t, st, store.ModeratorSettings{MaxMessages: 3})

	require.NoError(t, e.Start(ctx, sessionID, "Hello"))
	waitForStatus(t, st, sessionID, store.SessionCompleted)

	got := map[bus.EventType]int{}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case et := <-seen:
			got[et]++
			if got[bus.ConversationCompleted] > 0 && got[bus.MessageAdded] >= 3 {
				assert.Equal(t, 1, got[bus.ConversationStarted])
				assert.GreaterOrEqual(t, got[bus.TurnStarted], 2)
				assert.GreaterOrEqual(t, got[bus.TurnCompleted], 2)
				return
			}
		case <-deadline:
			t.Fatalf("missing events, saw %v", got)
		}
	}
}

// gatewayFunc adapts a function to the Gateway interface.
type gatewayFunc func(ctx context.Context, req model.CallRequest) (*model.CallResponse, error)

func (f gatewayFunc) Complete(ctx context.Context, req model.CallRequest) (*model.CallResponse, error) {
	return f(ctx, req)
}
