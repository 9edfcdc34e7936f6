package canvas

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a canvas, node, or edge does not exist
var ErrNotFound = errors.New("not found")

// Store persists canvases, nodes, edges, and snapshots in SQLite
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// NewStore opens the database and initializes the schema
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Msg("Canvas store initialized")

	return s, nil
}

// DB exposes the underlying database handle so sibling stores can share it
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS canvases (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL,
			type TEXT NOT NULL,
			position_x REAL NOT NULL,
			position_y REAL NOT NULL,
			width REAL NOT NULL,
			height REAL NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			style TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_canvas ON nodes(canvas_id);

		CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			style TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_edges_canvas ON edges(canvas_id);

		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL,
			name TEXT NOT NULL,
			nodes_json TEXT NOT NULL,
			edges_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_canvas ON snapshots(canvas_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateCanvas creates a new canvas
func (s *Store) CreateCanvas(ctx context.Context, title string) (*Canvas, error) {
	if title == "" {
		title = "Untitled Canvas"
	}

	now := time.Now()
	c := &Canvas{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvases (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert canvas: %w", err)
	}

	s.logger.Info().Str("canvasId", c.ID).Str("title", c.Title).Msg("Canvas created")

	return c, nil
}

// GetCanvas returns a canvas by id
func (s *Store) GetCanvas(ctx context.Context, id string) (*Canvas, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM canvases WHERE id = ?`, id)

	var c Canvas
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.Title, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("canvas %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan canvas: %w", err)
	}

	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)

	return &c, nil
}

// ListCanvases returns all canvases, oldest first
func (s *Store) ListCanvases(ctx context.Context) ([]Canvas, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM canvases ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query canvases: %w", err)
	}
	defer rows.Close()

	canvases := []Canvas{}
	for rows.Next() {
		var c Canvas
		var createdAt, updatedAt int64
		if err := rows.Scan(&c.ID, &c.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan canvas: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAt)
		c.UpdatedAt = time.UnixMilli(updatedAt)
		canvases = append(canvases, c)
	}

	return canvases, rows.Err()
}

// touchCanvas bumps the canvas updated_at timestamp
func (s *Store) touchCanvas(ctx context.Context, canvasID string) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE canvases SET updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), canvasID); err != nil {
		s.logger.Warn().Err(err).Str("canvasId", canvasID).Msg("Failed to touch canvas")
	}
}

// CreateNode creates a node on a canvas
func (s *Store) CreateNode(ctx context.Context, node Node) (*Node, error) {
	if node.CanvasID == "" {
		return nil, errors.New("canvas id is required")
	}
	if node.Type == "" {
		node.Type = "note"
	}
	if node.Width <= 0 {
		node.Width = 200
	}
	if node.Height <= 0 {
		node.Height = 120
	}

	// Reject nodes on canvases that do not exist
	if _, err := s.GetCanvas(ctx, node.CanvasID); err != nil {
		return nil, err
	}

	node.ID = uuid.New().String()
	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now

	styleJSON, err := marshalStyle(node.Style)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, canvas_id, type, position_x, position_y, width, height, content, style, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.CanvasID, node.Type, node.X, node.Y, node.Width, node.Height,
		node.Content, styleJSON, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}

	s.touchCanvas(ctx, node.CanvasID)

	return &node, nil
}

// GetNode returns a node by id
func (s *Store) GetNode(ctx context.Context, id string) (*Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canvas_id, type, position_x, position_y, width, height, content, style, created_at, updated_at
		 FROM nodes WHERE id = ?`, id)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	return node, nil
}

// UpdateNode applies a partial update to a node
func (s *Store) UpdateNode(ctx context.Context, id string, patch NodePatch) (*Node, error) {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Type != nil {
		node.Type = *patch.Type
	}
	if patch.X != nil {
		node.X = *patch.X
	}
	if patch.Y != nil {
		node.Y = *patch.Y
	}
	if patch.Width != nil {
		node.Width = *patch.Width
	}
	if patch.Height != nil {
		node.Height = *patch.Height
	}
	if patch.Content != nil {
		node.Content = *patch.Content
	}
	if patch.Style != nil {
		node.Style = patch.Style
	}

	node.UpdatedAt = time.Now()

	styleJSON, err := marshalStyle(node.Style)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE nodes SET type = ?, position_x = ?, position_y = ?, width = ?, height = ?, content = ?, style = ?, updated_at = ?
		 WHERE id = ?`,
		node.Type, node.X, node.Y, node.Width, node.Height, node.Content, styleJSON,
		node.UpdatedAt.UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	s.touchCanvas(ctx, node.CanvasID)

	return node, nil
}

// DeleteNode removes a node and any edges attached to it
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("failed to delete attached edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	s.touchCanvas(ctx, node.CanvasID)

	return nil
}

// ListNodes returns all nodes on a canvas, oldest first
func (s *Store) ListNodes(ctx context.Context, canvasID string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canvas_id, type, position_x, position_y, width, height, content, style, created_at, updated_at
		 FROM nodes WHERE canvas_id = ? ORDER BY created_at ASC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	return nodes, rows.Err()
}

// CreateEdge creates an edge between two existing nodes on the same canvas
func (s *Store) CreateEdge(ctx context.Context, edge Edge) (*Edge, error) {
	source, err := s.GetNode(ctx, edge.SourceID)
	if err != nil {
		return nil, fmt.Errorf("source node: %w", err)
	}
	target, err := s.GetNode(ctx, edge.TargetID)
	if err != nil {
		return nil, fmt.Errorf("target node: %w", err)
	}
	if source.CanvasID != target.CanvasID {
		return nil, errors.New("source and target nodes are on different canvases")
	}

	edge.ID = uuid.New().String()
	edge.CanvasID = source.CanvasID
	edge.CreatedAt = time.Now()

	styleJSON, err := marshalStyle(edge.Style)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edges (id, canvas_id, source_id, target_id, label, style, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.CanvasID, edge.SourceID, edge.TargetID, edge.Label, styleJSON,
		edge.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert edge: %w", err)
	}

	s.touchCanvas(ctx, edge.CanvasID)

	return &edge, nil
}

// GetEdge returns an edge by id
func (s *Store) GetEdge(ctx context.Context, id string) (*Edge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canvas_id, source_id, target_id, label, style, created_at
		 FROM edges WHERE id = ?`, id)

	var e Edge
	var styleJSON sql.NullString
	var createdAt int64
	if err := row.Scan(&e.ID, &e.CanvasID, &e.SourceID, &e.TargetID, &e.Label, &styleJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("edge %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan edge: %w", err)
	}

	e.CreatedAt = time.UnixMilli(createdAt)
	if style, err := unmarshalStyle(styleJSON); err == nil {
		e.Style = style
	}

	return &e, nil
}

// DeleteEdge removes an edge
func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	edge, err := s.GetEdge(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}

	s.touchCanvas(ctx, edge.CanvasID)

	return nil
}

// ListEdges returns all edges on a canvas, oldest first
func (s *Store) ListEdges(ctx context.Context, canvasID string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canvas_id, source_id, target_id, label, style, created_at
		 FROM edges WHERE canvas_id = ? ORDER BY created_at ASC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := []Edge{}
	for rows.Next() {
		var e Edge
		var styleJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.CanvasID, &e.SourceID, &e.TargetID, &e.Label, &styleJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		if style, err := unmarshalStyle(styleJSON); err == nil {
			e.Style = style
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

// SaveSnapshot captures the current canvas contents under a name
func (s *Store) SaveSnapshot(ctx context.Context, canvasID, name string) (*Snapshot, error) {
	nodes, err := s.ListNodes(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	edges, err := s.ListEdges(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:        uuid.New().String(),
		CanvasID:  canvasID,
		Name:      name,
		Nodes:     nodes,
		Edges:     edges,
		CreatedAt: time.Now(),
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edges: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, canvas_id, name, nodes_json, edges_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, canvasID, name, string(nodesJSON), string(edgesJSON), snap.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	s.logger.Info().Str("canvasId", canvasID).Str("snapshotId", snap.ID).Msg("Snapshot saved")

	return snap, nil
}

// GetSnapshot returns a snapshot by id
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canvas_id, name, nodes_json, edges_json, created_at FROM snapshots WHERE id = ?`, id)

	var snap Snapshot
	var nodesJSON, edgesJSON string
	var createdAt int64
	if err := row.Scan(&snap.ID, &snap.CanvasID, &snap.Name, &nodesJSON, &edgesJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snap.CreatedAt = time.UnixMilli(createdAt)
	if err := json.Unmarshal([]byte(nodesJSON), &snap.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &snap.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot edges: %w", err)
	}

	return &snap, nil
}

// RestoreSnapshot replaces the canvas contents with the snapshot's rows.
// The delete-then-reinsert must be atomic as a unit.
func (s *Store) RestoreSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error) {
	snap, err := s.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE canvas_id = ?`, snap.CanvasID); err != nil {
		return nil, fmt.Errorf("failed to clear edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE canvas_id = ?`, snap.CanvasID); err != nil {
		return nil, fmt.Errorf("failed to clear nodes: %w", err)
	}

	for _, node := range snap.Nodes {
		styleJSON, err := marshalStyle(node.Style)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, canvas_id, type, position_x, position_y, width, height, content, style, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			node.ID, node.CanvasID, node.Type, node.X, node.Y, node.Width, node.Height,
			node.Content, styleJSON, node.CreatedAt.UnixMilli(), node.UpdatedAt.UnixMilli()); err != nil {
			return nil, fmt.Errorf("failed to restore node %s: %w", node.ID, err)
		}
	}

	for _, edge := range snap.Edges {
		styleJSON, err := marshalStyle(edge.Style)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (id, canvas_id, source_id, target_id, label, style, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			edge.ID, edge.CanvasID, edge.SourceID, edge.TargetID, edge.Label, styleJSON,
			edge.CreatedAt.UnixMilli()); err != nil {
			return nil, fmt.Errorf("failed to restore edge %s: %w", edge.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}

	s.touchCanvas(ctx, snap.CanvasID)
	s.logger.Info().
		Str("canvasId", snap.CanvasID).
		Str("snapshotId", snapshotID).
		Int("nodes", len(snap.Nodes)).
		Int("edges", len(snap.Edges)).
		Msg("Snapshot restored")

	return snap, nil
}

// ListSnapshots returns snapshot metadata for a canvas, newest first
func (s *Store) ListSnapshots(ctx context.Context, canvasID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canvas_id, name, created_at FROM snapshots WHERE canvas_id = ? ORDER BY created_at DESC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var createdAt int64
		if err := rows.Scan(&snap.ID, &snap.CanvasID, &snap.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.CreatedAt = time.UnixMilli(createdAt)
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var styleJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&node.ID, &node.CanvasID, &node.Type, &node.X, &node.Y,
		&node.Width, &node.Height, &node.Content, &styleJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	node.CreatedAt = time.UnixMilli(createdAt)
	node.UpdatedAt = time.UnixMilli(updatedAt)
	if style, err := unmarshalStyle(styleJSON); err == nil {
		node.Style = style
	}

	return &node, nil
}

func marshalStyle(style map[string]interface{}) (interface{}, error) {
	if style == nil {
		return nil, nil
	}
	data, err := json.Marshal(style)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal style: %w", err)
	}
	return string(data), nil
}

func unmarshalStyle(raw sql.NullString) (map[string]interface{}, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var style map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &style); err != nil {
		return nil, err
	}
	return style, nil
}
