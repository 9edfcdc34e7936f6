package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	t.Run("should reload after the config file changes", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "watcher-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "atelier.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.DataDir = tmpDir
		require.NoError(t, loader.Save(cfg))

		reloaded := make(chan *Config, 1)
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		watcher, err := NewWatcher(loader, logger, func(updated *Config) {
			select {
			case reloaded <- updated:
			default:
			}
		})
		require.NoError(t, err)
		defer watcher.Stop()

		cfg.Scheduler.ActionIntervalMs = 90000
		require.NoError(t, loader.Save(cfg))

		select {
		case updated := <-reloaded:
			assert.Equal(t, 90000, updated.Scheduler.ActionIntervalMs)
		case <-time.After(5 * time.Second):
			t.Fatal("config reload was not observed")
		}
	})

	t.Run("should keep settings when the new file is invalid", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "watcher-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "atelier.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.DataDir = tmpDir
		require.NoError(t, loader.Save(cfg))

		reloaded := make(chan *Config, 1)
		logger := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
		watcher, err := NewWatcher(loader, logger, func(updated *Config) {
			select {
			case reloaded <- updated:
			default:
			}
		})
		require.NoError(t, err)
		defer watcher.Stop()

		cfg.Server.Port = -1
		require.NoError(t, loader.Save(cfg))

		select {
		case <-reloaded:
			t.Fatal("invalid config should not trigger the callback")
		case <-time.After(1500 * time.Millisecond):
		}
	})
}
