// ABOUTME: Tests for the SSE bridge
// ABOUTME: Verifies connected ack, session filtering, and unsubscribe on disconnect

package push

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/symposium/internal/bus"
)

func startSSE(t *testing.T, b *bus.Bus, query string) (*bufio.Scanner, context.CancelFunc) {
	t.Helper()
	h := NewHandler(b, nil, nil)
	h.ping = 50 * time.Millisecond
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events"+query, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	return bufio.NewScanner(resp.Body), cancel
}

// nextEvent reads SSE lines until one data payload arrives.
func nextEvent(t *testing.T, scanner *bufio.Scanner) wireEvent {
	t.Helper()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e wireEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		return e
	}
	t.Fatal("stream ended without an event")
	return wireEvent{}
}

func TestSSE_ConnectedAckFirst(t *testing.T) {
	b := bus.New(nil)
	scanner, cancel := startSSE(t, b, "")
	defer cancel()

	e := nextEvent(t, scanner)
	assert.Equal(t, "connected", e.Type)
}

func TestSSE_ForwardsBusEvents(t *testing.T) {
	b := bus.New(nil)
	scanner, cancel := startSSE(t, b, "")
	defer cancel()

	require.Equal(t, "connected", nextEvent(t, scanner).Type)

	// Subscription races the emit; wait for it to land
	waitForSubscriber(t, b)
	b.Emit(bus.MessageAdded, "s1", bus.MessagePayload{SessionID: "s1", Content: "hi"})

	for {
		e := nextEvent(t, scanner)
		if e.Type == "ping" {
			continue
		}
		assert.Equal(t, string(bus.MessageAdded), e.Type)
		assert.Equal(t, "s1", e.SessionID)
		return
	}
}

func TestSSE_SessionFilter(t *testing.T) {
	b := bus.New(nil)
	scanner, cancel := startSSE(t, b, "?session_id=s1")
	defer cancel()

	require.Equal(t, "connected", nextEvent(t, scanner).Type)
	waitForSubscriber(t, b)

	b.Emit(bus.MessageAdded, "other", bus.MessagePayload{SessionID: "other"})
	b.Emit(bus.MessageAdded, "s1", bus.MessagePayload{SessionID: "s1"})

	for {
		e := nextEvent(t, scanner)
		if e.Type == "ping" {
			continue
		}
		// The filtered event never arrives; the first real event is s1's
		assert.Equal(t, "s1", e.SessionID)
		return
	}
}

func TestSSE_PingKeepAlive(t *testing.T) {
	b := bus.New(nil)
	scanner, cancel := startSSE(t, b, "")
	defer cancel()

	require.Equal(t, "connected", nextEvent(t, scanner).Type)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if nextEvent(t, scanner).Type == "ping" {
			return
		}
	}
	t.Fatal("no ping within deadline")
}

func TestSSE_UnsubscribesOnDisconnect(t *testing.T) {
	b := bus.New(nil)
	scanner, cancel := startSSE(t, b, "")
	require.Equal(t, "connected", nextEvent(t, scanner).Type)
	waitForSubscriber(t, b)

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if busSubscriberCount(b) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscription leaked after disconnect")
}

func waitForSubscriber(t *testing.T, b *bus.Bus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if busSubscriberCount(b) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sse subscription never registered")
}

func busSubscriberCount(b *bus.Bus) int {
	return b.SubscriberCount("*")
}
