package persona

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestResolver(t *testing.T) (*Resolver, *OverrideStore, func()) {
	store, cleanup := setupTestOverrides(t)
	logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	return NewResolver(store, logger), store, cleanup
}

func TestSystemPrompt(t *testing.T) {
	t.Run("should use built-ins when no override exists", func(t *testing.T) {
		resolver, _, cleanup := setupTestResolver(t)
		defer cleanup()

		prompt, err := resolver.SystemPrompt(context.Background(), "architect")
		require.NoError(t, err)

		p, ok := Get("architect")
		require.True(t, ok)
		assert.Contains(t, prompt, DefaultBaseInstructions)
		assert.Contains(t, prompt, p.SystemSuffix)
	})

	t.Run("should prefer overridden suffix", func(t *testing.T) {
		resolver, store, cleanup := setupTestResolver(t)
		defer cleanup()

		_, err := store.Upsert(context.Background(), "architect", OverridePatch{
			SystemSuffix: strPtr("you only draw squares"),
		})
		require.NoError(t, err)

		prompt, err := resolver.SystemPrompt(context.Background(), "architect")
		require.NoError(t, err)
		assert.Contains(t, prompt, "you only draw squares")
	})

	t.Run("should prefer overridden base instructions", func(t *testing.T) {
		resolver, store, cleanup := setupTestResolver(t)
		defer cleanup()

		_, err := store.Upsert(context.Background(), BaseInstructionsKey, OverridePatch{
			BaseInstructions: strPtr("custom base rules"),
		})
		require.NoError(t, err)

		prompt, err := resolver.SystemPrompt(context.Background(), "coder")
		require.NoError(t, err)
		assert.Contains(t, prompt, "custom base rules")
		assert.NotContains(t, prompt, DefaultBaseInstructions)
	})

	t.Run("should reject unknown persona", func(t *testing.T) {
		resolver, _, cleanup := setupTestResolver(t)
		defer cleanup()

		_, err := resolver.SystemPrompt(context.Background(), "phantom")
		assert.Error(t, err)
	})
}

func TestSchedulerPrompts(t *testing.T) {
	t.Run("should fall back to registry templates", func(t *testing.T) {
		resolver, _, cleanup := setupTestResolver(t)
		defer cleanup()

		prompts, err := resolver.SchedulerPrompts(context.Background(), "dreamer")
		require.NoError(t, err)

		p, _ := Get("dreamer")
		assert.Equal(t, p.SchedulerPrompts, prompts)
	})

	t.Run("should prefer overridden templates", func(t *testing.T) {
		resolver, store, cleanup := setupTestResolver(t)
		defer cleanup()

		_, err := store.Upsert(context.Background(), "dreamer", OverridePatch{
			SchedulerPrompts: []string{"paint something blue"},
		})
		require.NoError(t, err)

		prompts, err := resolver.SchedulerPrompts(context.Background(), "dreamer")
		require.NoError(t, err)
		assert.Equal(t, []string{"paint something blue"}, prompts)
	})

	t.Run("should use the hard fallback when the override pool is empty", func(t *testing.T) {
		resolver, store, cleanup := setupTestResolver(t)
		defer cleanup()

		_, err := store.Upsert(context.Background(), "critic", OverridePatch{
			SchedulerPrompts: []string{},
		})
		require.NoError(t, err)

		prompts, err := resolver.SchedulerPrompts(context.Background(), "critic")
		require.NoError(t, err)
		assert.Equal(t, []string{FallbackSchedulerPrompt}, prompts)
	})

	t.Run("should reject unknown persona", func(t *testing.T) {
		resolver, _, cleanup := setupTestResolver(t)
		defer cleanup()

		_, err := resolver.SchedulerPrompts(context.Background(), "phantom")
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("should expose every persona through Keys", func(t *testing.T) {
		keys := Keys()
		assert.Len(t, keys, len(All()))
		for _, key := range keys {
			assert.True(t, IsValidKey(key))
		}
	})

	t.Run("should not treat the sentinel as a persona", func(t *testing.T) {
		assert.False(t, IsValidKey(BaseInstructionsKey))
	})
}
