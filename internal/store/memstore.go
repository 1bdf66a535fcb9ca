// ABOUTME: In-memory Store implementation for testing and ephemeral mode
// ABOUTME: Allows the engine and boundary to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation. Used by tests and by the
// server's --memory mode. A single mutex serializes all mutations, which is
// stricter than the per-session contract requires.
type MemStore struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	participants map[string]*Participant
	messages     map[string][]*Message // keyed by session ID, append order
	snapshots    map[string][]*AnalysisSnapshot
	apiErrors    []*APIError
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:     make(map[string]*Session),
		participants: make(map[string]*Participant),
		messages:     make(map[string][]*Message),
		snapshots:    make(map[string][]*AnalysisSnapshot),
	}
}

// CreateSession stores a new session.
func (m *MemStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return ErrDuplicateSession
	}

	// Copy to avoid external modification
	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// ListSessions returns sessions newest-first.
func (m *MemStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*Session
	for _, s := range m.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		copied := *s
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if filter.Limit > 0 && len(sessions) > filter.Limit {
		sessions = sessions[:filter.Limit]
	}
	return sessions, nil
}

// UpdateSession replaces a stored session.
func (m *MemStore) UpdateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	s := *session
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = &s
	return nil
}

// DeleteSession removes a session and everything hanging off it.
func (m *MemStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	delete(m.snapshots, id)
	for pid, p := range m.participants {
		if p.SessionID == id {
			delete(m.participants, pid)
		}
	}
	return nil
}

// AddParticipant stores a participant, assigning the next position.
func (m *MemStore) AddParticipant(ctx context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Position < 0 {
		next := 0
		for _, existing := range m.participants {
			if existing.SessionID == p.SessionID && existing.Position >= next {
				next = existing.Position + 1
			}
		}
		p.Position = next
	}

	copied := *p
	m.participants[copied.ID] = &copied
	return nil
}

// GetParticipant retrieves a participant by ID.
func (m *MemStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// ListParticipants returns a session's participants in insertion order.
func (m *MemStore) ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var participants []*Participant
	for _, p := range m.participants {
		if p.SessionID == sessionID {
			copied := *p
			participants = append(participants, &copied)
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Position != participants[j].Position {
			return participants[i].Position < participants[j].Position
		}
		if !participants[i].CreatedAt.Equal(participants[j].CreatedAt) {
			return participants[i].CreatedAt.Before(participants[j].CreatedAt)
		}
		return participants[i].ID < participants[j].ID
	})
	return participants, nil
}

// UpdateParticipant replaces a stored participant.
func (m *MemStore) UpdateParticipant(ctx context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.participants[p.ID]
	if !ok {
		return ErrNotFound
	}
	copied := *p
	copied.Position = existing.Position
	copied.UpdatedAt = time.Now()
	m.participants[copied.ID] = &copied
	return nil
}

// RemoveParticipant deletes a participant.
func (m *MemStore) RemoveParticipant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.participants[id]; !ok {
		return ErrNotFound
	}
	delete(m.participants, id)
	return nil
}

// AppendMessage appends a message and bumps the author's count.
func (m *MemStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *msg
	if copied.Generation != nil {
		gen := *copied.Generation
		copied.Generation = &gen
	}
	m.messages[copied.SessionID] = append(m.messages[copied.SessionID], &copied)

	if p, ok := m.participants[copied.ParticipantID]; ok {
		p.MessageCount++
		p.UpdatedAt = time.Now()
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MemStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == id {
				result := *msg
				return &result, nil
			}
		}
	}
	return nil, ErrNotFound
}

// ListMessages returns a session's messages in append order, windowed to
// the most recent limit when limit > 0.
func (m *MemStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		copied := *msg
		result[i] = &copied
	}
	return result, nil
}

// CountMessages returns the number of messages in a session.
func (m *MemStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[sessionID]), nil
}

// UpdateMessage replaces a message's content.
func (m *MemStore) UpdateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msgs := range m.messages {
		for _, existing := range msgs {
			if existing.ID == msg.ID {
				existing.Content = msg.Content
				return nil
			}
		}
	}
	return ErrNotFound
}

// DeleteMessage removes a message and decrements the author's count.
func (m *MemStore) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sessionID, msgs := range m.messages {
		for i, msg := range msgs {
			if msg.ID == id {
				m.messages[sessionID] = append(msgs[:i:i], msgs[i+1:]...)
				if p, ok := m.participants[msg.ParticipantID]; ok && p.MessageCount > 0 {
					p.MessageCount--
				}
				return nil
			}
		}
	}
	return ErrNotFound
}

// ClearMessages removes all messages for a session and resets counts.
func (m *MemStore) ClearMessages(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, sessionID)
	for _, p := range m.participants {
		if p.SessionID == sessionID {
			p.MessageCount = 0
		}
	}
	return nil
}

// AppendSnapshot appends an analysis snapshot.
func (m *MemStore) AppendSnapshot(ctx context.Context, snap *AnalysisSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *snap
	m.snapshots[copied.SessionID] = append(m.snapshots[copied.SessionID], &copied)
	return nil
}

// ListSnapshots returns a session's analysis timeline, oldest first.
func (m *MemStore) ListSnapshots(ctx context.Context, sessionID string, limit int) ([]*AnalysisSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[sessionID]
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	result := make([]*AnalysisSnapshot, len(snaps))
	for i, snap := range snaps {
		copied := *snap
		result[i] = &copied
	}
	return result, nil
}

// ClearSnapshots removes a session's analysis timeline.
func (m *MemStore) ClearSnapshots(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, sessionID)
	return nil
}

// AppendAPIError appends a failed-call record.
func (m *MemStore) AppendAPIError(ctx context.Context, apiErr *APIError) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *apiErr
	m.apiErrors = append(m.apiErrors, &copied)
	return nil
}

// ListAPIErrors returns recorded API errors, newest first.
func (m *MemStore) ListAPIErrors(ctx context.Context, sessionID string, limit int) ([]*APIError, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []*APIError
	for i := len(m.apiErrors) - 1; i >= 0; i-- {
		e := m.apiErrors[i]
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		copied := *e
		errs = append(errs, &copied)
		if limit > 0 && len(errs) == limit {
			break
		}
	}
	return errs, nil
}

// ClearAPIErrors removes API error records.
func (m *MemStore) ClearAPIErrors(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		m.apiErrors = nil
		return nil
	}
	kept := m.apiErrors[:0]
	for _, e := range m.apiErrors {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	m.apiErrors = kept
	return nil
}

// Close is a no-op for MemStore.
func (m *MemStore) Close() error {
	return nil
}
