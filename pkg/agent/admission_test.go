package agent

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePrompt(t *testing.T) {
	provider := &mockProvider{}
	h, cleanup := setupTestHarness(t, provider)
	defer cleanup()

	t.Run("should strip control chars and collapse whitespace", func(t *testing.T) {
		sanitized, err := h.invoker.SanitizePrompt(" hello\n\nworld\x00 ")
		require.NoError(t, err)
		assert.Equal(t, "hello world", sanitized)
	})

	t.Run("should reject whitespace-only input", func(t *testing.T) {
		_, err := h.invoker.SanitizePrompt("   \n\t  ")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})

	t.Run("should reject control-only input", func(t *testing.T) {
		_, err := h.invoker.SanitizePrompt("\x00\x01\x02")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})

	t.Run("should truncate to the maximum length", func(t *testing.T) {
		long := strings.Repeat("a", 5000)
		sanitized, err := h.invoker.SanitizePrompt(long)
		require.NoError(t, err)
		assert.Len(t, sanitized, 4000)
	})

	t.Run("should truncate on a rune boundary", func(t *testing.T) {
		// 3999 ASCII bytes, then two-byte runes so one straddles the limit.
		long := strings.Repeat("a", 3999) + strings.Repeat("é", 400)
		sanitized, err := h.invoker.SanitizePrompt(long)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(sanitized))
		assert.LessOrEqual(t, len(sanitized), 4000)
	})
}

func TestConcurrencyCap(t *testing.T) {
	t.Run("should reject the fourth concurrent run on one canvas", func(t *testing.T) {
		block := make(chan struct{})
		provider := &mockProvider{block: block}
		h, cleanup := setupTestHarness(t, provider)
		defer cleanup()

		for i := 0; i < 3; i++ {
			_, err := h.invoker.Invoke(context.Background(), h.canvasID, "dreamer", "mock-model", "work")
			require.NoError(t, err)
		}

		_, err := h.invoker.Invoke(context.Background(), h.canvasID, "dreamer", "mock-model", "one too many")
		assert.ErrorIs(t, err, ErrMaxConcurrent)

		// A different canvas still has its own budget
		other, err := h.canvases.CreateCanvas(context.Background(), "Other")
		require.NoError(t, err)
		_, err = h.invoker.Invoke(context.Background(), other.ID, "dreamer", "mock-model", "fine here")
		require.NoError(t, err)

		close(block)

		require.Eventually(t, func() bool {
			return h.invoker.ActiveCount(h.canvasID) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("should admit again after a run terminates", func(t *testing.T) {
		block := make(chan struct{})
		provider := &mockProvider{block: block}
		h, cleanup := setupTestHarness(t, provider)
		defer cleanup()

		for i := 0; i < 3; i++ {
			_, err := h.invoker.Invoke(context.Background(), h.canvasID, "dreamer", "mock-model", "work")
			require.NoError(t, err)
		}

		close(block)
		require.Eventually(t, func() bool {
			return h.invoker.ActiveCount(h.canvasID) == 0
		}, 5*time.Second, 10*time.Millisecond)

		session, err := h.invoker.Invoke(context.Background(), h.canvasID, "dreamer", "mock-model", "room again")
		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)

		require.Eventually(t, func() bool {
			return h.invoker.ActiveCount(h.canvasID) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("should not hold a slot when the prompt is invalid", func(t *testing.T) {
		provider := &mockProvider{}
		h, cleanup := setupTestHarness(t, provider)
		defer cleanup()

		_, err := h.invoker.Invoke(context.Background(), h.canvasID, "dreamer", "mock-model", "   ")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.Equal(t, 0, h.invoker.ActiveCount(h.canvasID))
	})
}

func TestInvoke(t *testing.T) {
	t.Run("should return the session immediately in thinking status", func(t *testing.T) {
		block := make(chan struct{})
		provider := &mockProvider{block: block}
		h, cleanup := setupTestHarness(t, provider)
		defer cleanup()

		session, err := h.invoker.Invoke(context.Background(), h.canvasID, "architect", "mock-model", "plan the space")
		require.NoError(t, err)
		assert.Equal(t, StatusThinking, session.Status)
		assert.Equal(t, "architect", session.PersonaKey)

		close(block)
		require.Eventually(t, func() bool {
			return h.invoker.ActiveCount(h.canvasID) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}
