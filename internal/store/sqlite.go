// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/participant/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
// A single *sql.DB in WAL mode gives one logical writer at a time, which
// satisfies the per-session mutual exclusion the Store contract requires.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			template TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			moderator_json TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (status IN ('idle', 'active', 'paused', 'completed', 'error'))
		);

		CREATE TABLE IF NOT EXISTS participants (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			status TEXT NOT NULL,
			settings_json TEXT NOT NULL DEFAULT '{}',
			system_prompt TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,

			CHECK (status IN ('active', 'thinking', 'idle', 'error', 'disconnected'))
		);

		CREATE INDEX IF NOT EXISTS idx_participants_session
			ON participants(session_id, position);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			participant_name TEXT NOT NULL,
			participant_type TEXT NOT NULL,
			content TEXT NOT NULL,
			generation_json TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS analysis_snapshots (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			message_count INTEGER NOT NULL,
			participant_count INTEGER NOT NULL,
			insights_json TEXT NOT NULL DEFAULT '{}',
			depth TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_session_created
			ON analysis_snapshots(session_id, created_at);

		CREATE TABLE IF NOT EXISTS api_errors (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			participant_id TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL,
			operation TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL,
			max_attempts INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_api_errors_session
			ON api_errors(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// snapshotInsights is the JSON shape stored in analysis_snapshots.insights_json
type snapshotInsights struct {
	Topics       []string `json:"topics"`
	Themes       []string `json:"themes"`
	Tensions     []string `json:"tensions"`
	Convergences []string `json:"convergences"`
}

// CreateSession inserts a new session row
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	moderator, err := json.Marshal(session.Moderator)
	if err != nil {
		return fmt.Errorf("encoding moderator settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, description, template, status, moderator_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Name, session.Description, session.Template,
		session.Status, string(moderator), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, template, status, moderator_json, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns sessions ordered by creation time, newest first
func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	query := `
		SELECT id, name, description, template, status, moderator_json, created_at, updated_at
		FROM sessions`
	args := []any{}
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSession replaces a session's mutable fields
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *Session) error {
	moderator, err := json.Marshal(session.Moderator)
	if err != nil {
		return fmt.Errorf("encoding moderator settings: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET name = ?, description = ?, template = ?, status = ?, moderator_json = ?, updated_at = ?
		WHERE id = ?`,
		session.Name, session.Description, session.Template, session.Status,
		string(moderator), time.Now(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return requireRow(result)
}

// DeleteSession removes a session and, via cascading foreign keys, its
// participants, messages, and analysis snapshots.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return requireRow(result)
}

// AddParticipant inserts a participant, assigning the next position in the session
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *Participant) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("encoding participant settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if p.Position < 0 {
		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM participants WHERE session_id = ?`, p.SessionID)
		if err := row.Scan(&p.Position); err != nil {
			return fmt.Errorf("assigning position: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants (id, session_id, name, provider, model, status, settings_json,
			system_prompt, position, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.Name, p.Provider, p.Model, p.Status, string(settings),
		p.SystemPrompt, p.Position, p.MessageCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting participant: %w", err)
	}
	return tx.Commit()
}

// GetParticipant retrieves a participant by id
func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, name, provider, model, status, settings_json,
			system_prompt, position, message_count, created_at, updated_at
		FROM participants WHERE id = ?`, id)
	return scanParticipant(row)
}

// ListParticipants returns a session's participants in insertion order
func (s *SQLiteStore) ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, name, provider, model, status, settings_json,
			system_prompt, position, message_count, created_at, updated_at
		FROM participants WHERE session_id = ? ORDER BY position, created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdateParticipant replaces a participant's mutable fields
func (s *SQLiteStore) UpdateParticipant(ctx context.Context, p *Participant) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("encoding participant settings: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE participants SET name = ?, provider = ?, model = ?, status = ?, settings_json = ?,
			system_prompt = ?, message_count = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Provider, p.Model, p.Status, string(settings),
		p.SystemPrompt, p.MessageCount, time.Now(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}
	return requireRow(result)
}

// RemoveParticipant deletes a participant row
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	return requireRow(result)
}

// AppendMessage inserts a message and bumps the author's message count in
// the same transaction, keeping the derived count in sync.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	var generation *string
	if msg.Generation != nil {
		encoded, err := json.Marshal(msg.Generation)
		if err != nil {
			return fmt.Errorf("encoding generation info: %w", err)
		}
		str := string(encoded)
		generation = &str
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, participant_id, participant_name, participant_type,
			content, generation_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.ParticipantID, msg.ParticipantName, msg.ParticipantType,
		msg.Content, generation, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	// Moderator is synthetic and has no participant row
	if msg.ParticipantID != ModeratorID {
		_, err = tx.ExecContext(ctx,
			`UPDATE participants SET message_count = message_count + 1, updated_at = ? WHERE id = ?`,
			time.Now(), msg.ParticipantID)
		if err != nil {
			return fmt.Errorf("incrementing message count: %w", err)
		}
	}

	return tx.Commit()
}

// GetMessage retrieves a message by id
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, participant_id, participant_name, participant_type,
			content, generation_json, created_at
		FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// ListMessages returns a session's messages in append order.
// A positive limit returns the most recent messages, still oldest-first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, session_id, participant_id, participant_name, participant_type,
			content, generation_json, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id`
	args := []any{sessionID}
	if limit > 0 {
		// Window to the tail by nesting a reversed limited query
		query = `
			SELECT * FROM (
				SELECT id, session_id, participant_id, participant_name, participant_type,
					content, generation_json, created_at
				FROM messages WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
			) ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of messages in a session
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// UpdateMessage replaces a message's content
func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *Message) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ? WHERE id = ?`, msg.Content, msg.ID)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	return requireRow(result)
}

// DeleteMessage removes a message and decrements the author's message count
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var participantID string
	err = tx.QueryRowContext(ctx,
		`SELECT participant_id FROM messages WHERE id = ?`, id).Scan(&participantID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	if participantID != ModeratorID {
		_, err = tx.ExecContext(ctx,
			`UPDATE participants SET message_count = MAX(message_count - 1, 0), updated_at = ? WHERE id = ?`,
			time.Now(), participantID)
		if err != nil {
			return fmt.Errorf("decrementing message count: %w", err)
		}
	}

	return tx.Commit()
}

// ClearMessages removes all messages for a session and resets message counts
func (s *SQLiteStore) ClearMessages(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET message_count = 0, updated_at = ? WHERE session_id = ?`,
		time.Now(), sessionID); err != nil {
		return fmt.Errorf("resetting message counts: %w", err)
	}
	return tx.Commit()
}

// AppendSnapshot appends an analysis snapshot to a session's timeline
func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap *AnalysisSnapshot) error {
	insights, err := json.Marshal(snapshotInsights{
		Topics:       snap.Topics,
		Themes:       snap.Themes,
		Tensions:     snap.Tensions,
		Convergences: snap.Convergences,
	})
	if err != nil {
		return fmt.Errorf("encoding insights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_snapshots (id, session_id, message_count, participant_count,
			insights_json, depth, phase, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, snap.MessageCount, snap.ParticipantCount,
		string(insights), snap.Depth, snap.Phase, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a session's analysis timeline, oldest first
func (s *SQLiteStore) ListSnapshots(ctx context.Context, sessionID string, limit int) ([]*AnalysisSnapshot, error) {
	query := `
		SELECT id, session_id, message_count, participant_count, insights_json, depth, phase, created_at
		FROM analysis_snapshots WHERE session_id = ? ORDER BY created_at, id`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*AnalysisSnapshot
	for rows.Next() {
		snap := &AnalysisSnapshot{}
		var insightsJSON string
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.MessageCount, &snap.ParticipantCount,
			&insightsJSON, &snap.Depth, &snap.Phase, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		var insights snapshotInsights
		if err := json.Unmarshal([]byte(insightsJSON), &insights); err != nil {
			return nil, fmt.Errorf("decoding insights: %w", err)
		}
		snap.Topics = insights.Topics
		snap.Themes = insights.Themes
		snap.Tensions = insights.Tensions
		snap.Convergences = insights.Convergences
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// ClearSnapshots removes a session's analysis timeline
func (s *SQLiteStore) ClearSnapshots(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clearing snapshots: %w", err)
	}
	return nil
}

// AppendAPIError appends a failed-call record to the audit trail
func (s *SQLiteStore) AppendAPIError(ctx context.Context, apiErr *APIError) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_errors (id, session_id, participant_id, provider, operation,
			message, attempt, max_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		apiErr.ID, apiErr.SessionID, apiErr.ParticipantID, apiErr.Provider, apiErr.Operation,
		apiErr.Message, apiErr.Attempt, apiErr.MaxAttempts, apiErr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting api error: %w", err)
	}
	return nil
}

// ListAPIErrors returns recorded API errors, newest first.
// An empty sessionID returns errors across all sessions.
func (s *SQLiteStore) ListAPIErrors(ctx context.Context, sessionID string, limit int) ([]*APIError, error) {
	query := `
		SELECT id, session_id, participant_id, provider, operation, message, attempt, max_attempts, created_at
		FROM api_errors`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing api errors: %w", err)
	}
	defer rows.Close()

	var errs []*APIError
	for rows.Next() {
		e := &APIError{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ParticipantID, &e.Provider, &e.Operation,
			&e.Message, &e.Attempt, &e.MaxAttempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning api error: %w", err)
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// ClearAPIErrors removes API error records. An empty sessionID clears all.
func (s *SQLiteStore) ClearAPIErrors(ctx context.Context, sessionID string) error {
	query := `DELETE FROM api_errors`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing api errors: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	session := &Session{}
	var moderatorJSON string
	err := row.Scan(&session.ID, &session.Name, &session.Description, &session.Template,
		&session.Status, &moderatorJSON, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if err := json.Unmarshal([]byte(moderatorJSON), &session.Moderator); err != nil {
		return nil, fmt.Errorf("decoding moderator settings: %w", err)
	}
	return session, nil
}

func scanParticipant(row scanner) (*Participant, error) {
	p := &Participant{}
	var settingsJSON string
	err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.Provider, &p.Model, &p.Status,
		&settingsJSON, &p.SystemPrompt, &p.Position, &p.MessageCount, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning participant: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &p.Settings); err != nil {
		return nil, fmt.Errorf("decoding participant settings: %w", err)
	}
	return p, nil
}

func scanMessage(row scanner) (*Message, error) {
	msg := &Message{}
	var generationJSON *string
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.ParticipantID, &msg.ParticipantName,
		&msg.ParticipantType, &msg.Content, &generationJSON, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	if generationJSON != nil {
		msg.Generation = &GenerationInfo{}
		if err := json.Unmarshal([]byte(*generationJSON), msg.Generation); err != nil {
			return nil, fmt.Errorf("decoding generation info: %w", err)
		}
	}
	return msg, nil
}

// requireRow converts a zero-row update/delete into ErrNotFound
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
