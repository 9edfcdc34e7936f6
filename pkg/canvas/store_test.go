package canvas

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "canvas-test-*")
	require.NoError(t, err)

	logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	store, err := NewStore(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: logger,
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestCreateCanvas(t *testing.T) {
	t.Run("should create and retrieve canvas", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c, err := store.CreateCanvas(context.Background(), "Mood board")
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "Mood board", c.Title)

		got, err := store.GetCanvas(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
	})

	t.Run("should return ErrNotFound for unknown canvas", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		_, err := store.GetCanvas(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should list canvases", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		_, err := store.CreateCanvas(context.Background(), "One")
		require.NoError(t, err)
		_, err = store.CreateCanvas(context.Background(), "Two")
		require.NoError(t, err)

		canvases, err := store.ListCanvases(context.Background())
		require.NoError(t, err)
		assert.Len(t, canvases, 2)
	})
}

func TestNodes(t *testing.T) {
	t.Run("should apply defaults on create", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c, err := store.CreateCanvas(context.Background(), "Test")
		require.NoError(t, err)

		node, err := store.CreateNode(context.Background(), Node{
			CanvasID: c.ID,
			Content:  "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, "note", node.Type)
		assert.Equal(t, float64(200), node.Width)
		assert.Equal(t, float64(120), node.Height)
	})

	t.Run("should reject node for unknown canvas", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		_, err := store.CreateNode(context.Background(), Node{
			CanvasID: "missing",
			Content:  "orphan",
		})
		assert.Error(t, err)
	})

	t.Run("should update only patched fields", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c, err := store.CreateCanvas(context.Background(), "Test")
		require.NoError(t, err)

		node, err := store.CreateNode(context.Background(), Node{
			CanvasID: c.ID,
			Content:  "before",
			X:        10,
			Y:        20,
		})
		require.NoError(t, err)

		content := "after"
		updated, err := store.UpdateNode(context.Background(), node.ID, NodePatch{
			Content: &content,
		})
		require.NoError(t, err)
		assert.Equal(t, "after", updated.Content)
		assert.Equal(t, float64(10), updated.X)
		assert.Equal(t, float64(20), updated.Y)
	})

	t.Run("should delete node and its edges", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c, err := store.CreateCanvas(context.Background(), "Test")
		require.NoError(t, err)

		a, err := store.CreateNode(context.Background(), Node{CanvasID: c.ID, Content: "a"})
		require.NoError(t, err)
		b, err := store.CreateNode(context.Background(), Node{CanvasID: c.ID, Content: "b"})
		require.NoError(t, err)

		_, err = store.CreateEdge(context.Background(), Edge{
			CanvasID: c.ID,
			SourceID: a.ID,
			TargetID: b.ID,
		})
		require.NoError(t, err)

		err = store.DeleteNode(context.Background(), a.ID)
		require.NoError(t, err)

		edges, err := store.ListEdges(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func TestEdges(t *testing.T) {
	t.Run("should reject edge referencing unknown node", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c, err := store.CreateCanvas(context.Background(), "Test")
		require.NoError(t, err)

		a, err := store.CreateNode(context.Background(), Node{CanvasID: c.ID, Content: "a"})
		require.NoError(t, err)

		_, err = store.CreateEdge(context.Background(), Edge{
			CanvasID: c.ID,
			SourceID: a.ID,
			TargetID: "missing",
		})
		assert.Error(t, err)
	})

	t.Run("should reject edge spanning two canvases", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c1, err := store.CreateCanvas(context.Background(), "One")
		require.NoError(t, err)
		c2, err := store.CreateCanvas(context.Background(), "Two")
		require.NoError(t, err)

		a, err := store.CreateNode(context.Background(), Node{CanvasID: c1.ID, Content: "a"})
		require.NoError(t, err)
		b, err := store.CreateNode(context.Background(), Node{CanvasID: c2.ID, Content: "b"})
		require.NoError(t, err)

		_, err = store.CreateEdge(context.Background(), Edge{
			CanvasID: c1.ID,
			SourceID: a.ID,
			TargetID: b.ID,
		})
		assert.Error(t, err)
	})
}

func TestSnapshots(t *testing.T) {
	t.Run("should restore canvas to snapshot state", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		c, err := store.CreateCanvas(context.Background(), "Test")
		require.NoError(t, err)

		a, err := store.CreateNode(context.Background(), Node{CanvasID: c.ID, Content: "keep"})
		require.NoError(t, err)
		b, err := store.CreateNode(context.Background(), Node{CanvasID: c.ID, Content: "keep too"})
		require.NoError(t, err)
		_, err = store.CreateEdge(context.Background(), Edge{CanvasID: c.ID, SourceID: a.ID, TargetID: b.ID})
		require.NoError(t, err)

		snapshot, err := store.SaveSnapshot(context.Background(), c.ID, "before changes")
		require.NoError(t, err)

		// Mutate after the snapshot
		_, err = store.CreateNode(context.Background(), Node{CanvasID: c.ID, Content: "discard"})
		require.NoError(t, err)
		err = store.DeleteNode(context.Background(), a.ID)
		require.NoError(t, err)

		_, err = store.RestoreSnapshot(context.Background(), snapshot.ID)
		require.NoError(t, err)

		nodes, err := store.ListNodes(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Len(t, nodes, 2)

		edges, err := store.ListEdges(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})
}

func TestContentBounds(t *testing.T) {
	t.Run("should report empty for no nodes", func(t *testing.T) {
		_, ok := ContentBounds(nil)
		assert.False(t, ok)
	})

	t.Run("should cover all node extents", func(t *testing.T) {
		nodes := []Node{
			{X: 0, Y: 0, Width: 100, Height: 50},
			{X: 300, Y: -40, Width: 200, Height: 120},
		}

		bounds, ok := ContentBounds(nodes)
		require.True(t, ok)
		assert.Equal(t, float64(0), bounds.MinX)
		assert.Equal(t, float64(-40), bounds.MinY)
		assert.Equal(t, float64(500), bounds.MaxX)
		assert.Equal(t, float64(80), bounds.MaxY)
	})
}
