package sharedcontext

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Store is the per-canvas, TTL-bounded coordination log. Expired entries
// are pruned lazily on every read for the canvas; there is no background
// sweep. Writes are never rejected for capacity reasons.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore initializes the shared-context table on a shared database
func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS shared_context_entries (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL,
			session_id TEXT,
			author_name TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			content TEXT NOT NULL,
			expires_at INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_shared_context_canvas ON shared_context_entries(canvas_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_shared_context_expiry ON shared_context_entries(canvas_id, expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize shared context schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// AddEntry creates a new coordination entry. Content fields such as
// targetPersona/ask or toEntryId/response are convention, not enforced.
func (s *Store) AddEntry(ctx context.Context, canvasID, sessionID, authorName string, entryType EntryType, content map[string]interface{}, ttl time.Duration) (*Entry, error) {
	if canvasID == "" {
		return nil, errors.New("canvas id is required")
	}
	if !entryType.IsValid() {
		return nil, fmt.Errorf("invalid entry type: %s", entryType)
	}
	if content == nil {
		content = map[string]interface{}{}
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry id: %w", err)
	}

	entry := &Entry{
		ID:         id,
		CanvasID:   canvasID,
		SessionID:  sessionID,
		AuthorName: authorName,
		EntryType:  entryType,
		Content:    content,
		CreatedAt:  time.Now(),
	}

	var expiresAtMs interface{}
	if ttl > 0 {
		expiresAt := entry.CreatedAt.Add(ttl)
		entry.ExpiresAt = &expiresAt
		expiresAtMs = expiresAt.UnixMilli()
	}

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}

	var sessionIDArg interface{}
	if sessionID != "" {
		sessionIDArg = sessionID
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shared_context_entries (id, canvas_id, session_id, author_name, entry_type, content, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, canvasID, sessionIDArg, authorName, string(entryType), string(contentJSON),
		expiresAtMs, entry.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}

	s.logger.Debug().
		Str("canvasId", canvasID).
		Str("entryId", entry.ID).
		Str("entryType", string(entryType)).
		Str("author", authorName).
		Msg("Shared context entry added")

	return entry, nil
}

// pruneExpired deletes all expired entries for a canvas. Called on every
// read path so reads never observe an expired entry.
func (s *Store) pruneExpired(ctx context.Context, canvasID string) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shared_context_entries WHERE canvas_id = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		canvasID, time.Now().UnixMilli())
	if err != nil {
		s.logger.Warn().Err(err).Str("canvasId", canvasID).Msg("Failed to prune expired entries")
		return
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug().Str("canvasId", canvasID).Int64("pruned", n).Msg("Expired shared context entries pruned")
	}
}

// GetRecentEntries returns up to opts.Limit entries for a canvas,
// newest first, after pruning expired ones
func (s *Store) GetRecentEntries(ctx context.Context, canvasID string, opts QueryOptions) ([]Entry, error) {
	s.pruneExpired(ctx, canvasID)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	query := `SELECT id, canvas_id, session_id, author_name, entry_type, content, expires_at, created_at
		FROM shared_context_entries WHERE canvas_id = ?`
	args := []interface{}{canvasID}

	if opts.EntryType != "" {
		query += ` AND entry_type = ?`
		args = append(args, string(opts.EntryType))
	}
	if opts.ExcludeSessionID != "" {
		query += ` AND (session_id IS NULL OR session_id != ?)`
		args = append(args, opts.ExcludeSessionID)
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

// GetOpenRequests returns request entries for a canvas, optionally
// filtered to those whose content targetPersona matches or is absent
func (s *Store) GetOpenRequests(ctx context.Context, canvasID, targetPersona, excludeSessionID string) ([]Entry, error) {
	requests, err := s.GetRecentEntries(ctx, canvasID, QueryOptions{
		EntryType:        EntryRequest,
		Limit:            maxLimit,
		ExcludeSessionID: excludeSessionID,
	})
	if err != nil {
		return nil, err
	}

	if targetPersona == "" {
		return requests, nil
	}

	filtered := []Entry{}
	for _, entry := range requests {
		target := entry.TargetPersona()
		if target == "" || target == targetPersona {
			filtered = append(filtered, entry)
		}
	}

	return filtered, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var sessionID sql.NullString
	var contentJSON string
	var expiresAt sql.NullInt64
	var createdAt int64

	err := rows.Scan(&entry.ID, &entry.CanvasID, &sessionID, &entry.AuthorName,
		(*string)(&entry.EntryType), &contentJSON, &expiresAt, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	entry.SessionID = sessionID.String
	entry.CreatedAt = time.UnixMilli(createdAt)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		entry.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(contentJSON), &entry.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry content: %w", err)
	}

	return &entry, nil
}
