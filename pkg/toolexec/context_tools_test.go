package toolexec

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
)

func setupContextTools(t *testing.T) (*Executor, *sharedcontext.Store, func()) {
	tmpDir, err := os.MkdirTemp("", "contexttools-test-*")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)

	logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	store, err := sharedcontext.NewStore(db, logger)
	require.NoError(t, err)

	exec := New()
	hub := broadcast.NewHub(logger)
	require.NoError(t, RegisterContextTools(exec, store, hub))

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return exec, store, cleanup
}

func TestShareCreativeContext(t *testing.T) {
	t.Run("should store the entry attributed to the session", func(t *testing.T) {
		exec, store, cleanup := setupContextTools(t)
		defer cleanup()

		execCtx := &ExecContext{CanvasID: "canvas-1", SessionID: "s1", AuthorName: "🌙 Dreamer"}
		result := exec.Execute(context.Background(), "share_creative_context",
			`{"entryType": "intention", "content": {"text": "sketching constellations"}}`, execCtx)
		require.Empty(t, result.Error)

		entries, err := store.GetRecentEntries(context.Background(), "canvas-1", sharedcontext.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "🌙 Dreamer", entries[0].AuthorName)
		assert.Equal(t, "s1", entries[0].SessionID)
	})

	t.Run("should reject an invalid entry type", func(t *testing.T) {
		exec, _, cleanup := setupContextTools(t)
		defer cleanup()

		execCtx := &ExecContext{CanvasID: "canvas-1", SessionID: "s1"}
		result := exec.Execute(context.Background(), "share_creative_context",
			`{"entryType": "gossip", "content": {}}`, execCtx)
		assert.NotEmpty(t, result.Error)
	})
}

func TestReadSharedContext(t *testing.T) {
	t.Run("should hide the reader's own entries", func(t *testing.T) {
		exec, store, cleanup := setupContextTools(t)
		defer cleanup()

		_, err := store.AddEntry(context.Background(), "canvas-1", "s1", "me",
			sharedcontext.EntryIntention, map[string]interface{}{"text": "own"}, 0)
		require.NoError(t, err)
		_, err = store.AddEntry(context.Background(), "canvas-1", "s2", "them",
			sharedcontext.EntryIntention, map[string]interface{}{"text": "other"}, 0)
		require.NoError(t, err)

		execCtx := &ExecContext{CanvasID: "canvas-1", SessionID: "s1"}
		result := exec.Execute(context.Background(), "read_shared_context", `{}`, execCtx)
		require.Empty(t, result.Error)

		output, ok := result.Output.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 1, output["count"])
	})
}

func TestRequestAgent(t *testing.T) {
	t.Run("should leave an expiring directed request", func(t *testing.T) {
		exec, store, cleanup := setupContextTools(t)
		defer cleanup()

		execCtx := &ExecContext{CanvasID: "canvas-1", SessionID: "s1", AuthorName: "🧐 Critic"}
		result := exec.Execute(context.Background(), "request_agent",
			`{"targetPersona": "coder", "prompt": "turn this into pseudocode"}`, execCtx)
		require.Empty(t, result.Error)

		requests, err := store.GetOpenRequests(context.Background(), "canvas-1", "coder", "")
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, "turn this into pseudocode", requests[0].Ask())
		assert.NotNil(t, requests[0].ExpiresAt)
	})

	t.Run("should reject an unknown target persona", func(t *testing.T) {
		exec, _, cleanup := setupContextTools(t)
		defer cleanup()

		execCtx := &ExecContext{CanvasID: "canvas-1", SessionID: "s1"}
		result := exec.Execute(context.Background(), "request_agent",
			`{"targetPersona": "phantom", "prompt": "do anything"}`, execCtx)
		assert.Contains(t, result.Error, "unknown persona")
	})
}
