package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("USE_MOCKS", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Cache)
	assert.Equal(t, 5000, cfg.Webhooks.DebounceMs)
	assert.True(t, cfg.UseMocks, "development with no explicit toggle defaults to mocks")
}

func TestUseMocksExplicitToggleWins(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("USE_MOCKS", "true")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.UseMocks)
}

func TestLoadYAMLPlugins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "udl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plugins:
  - name: demo
    strategy: refetch
    idField: externalId
cache: true
webhooks:
  debounceMs: 50
  maxQueueSize: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Plugins, 1)
	assert.Equal(t, "demo", cfg.Plugins[0].Name)
	assert.Equal(t, 50, cfg.Webhooks.DebounceMs)
}

func TestValidateRejectsDuplicatePluginNames(t *testing.T) {
	cfg := &Config{Plugins: []PluginConfig{{Name: "a"}, {Name: "a"}}}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := &Config{Plugins: []PluginConfig{{Name: "a", Strategy: "bogus"}}}
	err := cfg.Validate()
	require.Error(t, err)
}
