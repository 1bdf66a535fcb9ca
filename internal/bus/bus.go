// ABOUTME: In-process publish/subscribe keyed by event type
// ABOUTME: Fans each emission out to all subscribers with per-handler panic isolation

package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one emission on the bus. Events are ephemeral: they exist only
// for the duration of fan-out and are never persisted.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// PodID identifies the emitting process. Display/debugging only;
	// it plays no role in correctness.
	PodID string `json:"pod_id"`
}

// Handler receives events. Handlers run concurrently with each other and
// with the emitter; a panicking handler is recovered and logged.
type Handler func(Event)

// anyType is the reserved subscription key receiving every emission.
const anyType EventType = "*"

// Bus is an in-process event fan-out keyed by event type. Safe for
// concurrent Emit/Subscribe/unsubscribe from multiple goroutines.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[string]Handler // type -> subID -> handler
	podID       string
	logger      *slog.Logger
}

// New creates a Bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[EventType]map[string]Handler),
		podID:       uuid.New().String(),
		logger:      logger.With("component", "bus"),
	}
}

// PodID returns the identifier stamped onto every emission.
func (b *Bus) PodID() string {
	return b.podID
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Unsubscribing is idempotent and safe to call while
// an emission is in flight.
func (b *Bus) Subscribe(t EventType, h Handler) func() {
	subID := uuid.New().String()

	b.mu.Lock()
	if _, ok := b.subscribers[t]; !ok {
		b.subscribers[t] = make(map[string]Handler)
	}
	b.subscribers[t][subID] = h
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "event_type", t, "sub_id", subID)

	return func() { b.unsubscribe(t, subID) }
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.Subscribe(anyType, h)
}

// Emit dispatches an event to all subscribers of its type (and to
// SubscribeAll subscribers). Each handler runs on its own goroutine; a
// handler panic is recovered and logged, never propagated to the emitter.
func (b *Bus) Emit(t EventType, sessionID string, payload any) {
	event := Event{
		Type:      t,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
		PodID:     b.podID,
	}

	// Copy handlers under read lock so subscribe/unsubscribe during
	// dispatch cannot corrupt iteration or double-deliver.
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subscribers[t])+len(b.subscribers[anyType]))
	for _, h := range b.subscribers[t] {
		targets = append(targets, h)
	}
	if t != anyType {
		for _, h := range b.subscribers[anyType] {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		go b.dispatch(h, event)
	}
}

// dispatch runs one handler with panic isolation.
func (b *Bus) dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", event.Type,
				"session_id", event.SessionID,
				"panic", r)
		}
	}()
	h(event)
}

func (b *Bus) unsubscribe(t EventType, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[t]
	if !ok {
		return
	}
	if _, exists := subs[subID]; !exists {
		return
	}
	delete(subs, subID)

	// Free the type entry once its last handler is gone
	if len(subs) == 0 {
		delete(b.subscribers, t)
	}

	b.logger.Debug("subscriber removed", "event_type", t, "sub_id", subID)
}

// SubscriberCount reports the number of handlers for a type. Test helper.
func (b *Bus) SubscriberCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[t])
}
