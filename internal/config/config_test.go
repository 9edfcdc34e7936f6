package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("should have sane agent limits", func(t *testing.T) {
		cfg := DefaultConfig()

		assert.Equal(t, 3, cfg.Agents.MaxConcurrentSessions)
		assert.Equal(t, 10, cfg.Agents.MaxRounds)
		assert.Equal(t, 4000, cfg.Agents.MaxPromptLength)
		assert.Equal(t, 5000, cfg.Scheduler.CheckIntervalMs)
		assert.Equal(t, 45000, cfg.Scheduler.ActionIntervalMs)
		assert.False(t, cfg.Scheduler.Enabled)
	})

	t.Run("should validate out of the box", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})
}

func TestValidate(t *testing.T) {
	t.Run("should reject invalid port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject unknown AI provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{
			{ID: "p1", Provider: "cohere", APIKey: "key"},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject profile without api key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{
			{ID: "p1", Provider: "openai"},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject enabled scheduler without profiles", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Scheduler.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("should accept enabled scheduler with a profile", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Scheduler.Enabled = true
		cfg.AI.Profiles = []AIProfile{
			{ID: "p1", Provider: "anthropic", APIKey: "key"},
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should reject non-positive limits", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agents.MaxRounds = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLoader(t *testing.T) {
	t.Run("should fall back to defaults when file is missing", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "config-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		loader := NewLoader(filepath.Join(tmpDir, "missing.json"))
		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("should round-trip save and load", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "config-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "atelier.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.Server.Port = 9999
		cfg.Scheduler.ActionIntervalMs = 60000
		cfg.DataDir = tmpDir
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 9999, loaded.Server.Port)
		assert.Equal(t, 60000, loaded.Scheduler.ActionIntervalMs)
	})
}
