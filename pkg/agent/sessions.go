package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionStore persists agent sessions. Sessions are never deleted so a
// canvas keeps its full collaboration history.
type SessionStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSessionStore creates a session store on an already-open database
func NewSessionStore(db *sql.DB, logger zerolog.Logger) (*SessionStore, error) {
	s := &SessionStore{
		db:     db,
		logger: logger.With().Str("component", "session_store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	return s, nil
}

func (s *SessionStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_sessions (
		id TEXT PRIMARY KEY,
		canvas_id TEXT NOT NULL,
		persona_key TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'thinking',
		tool_calls TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_canvas ON agent_sessions(canvas_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new session in the thinking state
func (s *SessionStore) Create(ctx context.Context, canvasID, personaKey, model string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:         uuid.New().String(),
		CanvasID:   canvasID,
		PersonaKey: personaKey,
		Model:      model,
		Status:     StatusThinking,
		ToolCalls:  []ToolCallRecord{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_sessions (id, canvas_id, persona_key, model, status, tool_calls, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '[]', ?, ?)`,
		session.ID, session.CanvasID, session.PersonaKey, session.Model, string(session.Status),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug().
		Str("session_id", session.ID).
		Str("canvas_id", canvasID).
		Str("persona", personaKey).
		Msg("Session created")

	return session, nil
}

// Get retrieves a session by id
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canvas_id, persona_key, model, status, tool_calls, created_at, updated_at
		 FROM agent_sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListByCanvas returns the sessions for a canvas, newest first
func (s *SessionStore) ListByCanvas(ctx context.Context, canvasID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canvas_id, persona_key, model, status, tool_calls, created_at, updated_at
		 FROM agent_sessions WHERE canvas_id = ?
		 ORDER BY created_at DESC LIMIT ?`, canvasID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// CountActive returns how many non-terminal sessions a canvas has
func (s *SessionStore) CountActive(ctx context.Context, canvasID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_sessions WHERE canvas_id = ? AND status NOT IN ('idle', 'error')`,
		canvasID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// UpdateStatus transitions a session's lifecycle state
func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session not found: %s", id)
	}

	return nil
}

// AppendToolCall adds one record to the session's ordered tool-call log
func (s *SessionStore) AppendToolCall(ctx context.Context, id string, record ToolCallRecord) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	log := append(session.ToolCalls, record)
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal tool call log: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET tool_calls = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to append tool call: %w", err)
	}

	return nil
}

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var session Session
	var status, toolCallsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.CanvasID, &session.PersonaKey, &session.Model,
		&status, &toolCallsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	session.Status = Status(status)
	session.CreatedAt = time.UnixMilli(createdAt)
	session.UpdatedAt = time.UnixMilli(updatedAt)

	if err := json.Unmarshal([]byte(toolCallsJSON), &session.ToolCalls); err != nil {
		session.ToolCalls = []ToolCallRecord{}
	}

	return &session, nil
}
