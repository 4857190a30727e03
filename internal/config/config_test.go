package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		require.NoError(t, err)
		assert.Equal(t, 1500*time.Millisecond, cfg.StatusTTL())
		assert.Equal(t, 200, cfg.Diff.CacheCapacity)
		assert.Equal(t, 400*time.Millisecond, cfg.WatchDebounce())
		assert.Equal(t, "git", cfg.GitBinary)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"server": {"host": "0.0.0.0", "port": 9000},
			"status": {"cache_ttl_ms": 500},
			"log_level": "debug"
		}`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 500*time.Millisecond, cfg.StatusTTL())
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 200, cfg.Diff.CacheCapacity)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(path, []byte("diff:\n  cache_capacity: 50\nwatch:\n  debounce_ms: 100\n  ignore_dirs: [node_modules]\nworkers: 0\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Diff.CacheCapacity)
		assert.Equal(t, 100*time.Millisecond, cfg.WatchDebounce())
		assert.Equal(t, []string{"node_modules"}, cfg.Watch.IgnoreDirs)
		assert.Equal(t, Default().Workers, cfg.Workers)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
