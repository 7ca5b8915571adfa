package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Chat.MaxToolIterations)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONVOFLOW_MODEL_PROVIDER", "anthropic")
	t.Setenv("CONVOFLOW_STORE_DRIVER", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  provider: anthropic
  name: claude-3-5-sonnet
chat:
  max_tool_iterations: 5
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-3-5-sonnet", cfg.Model.Name)
	assert.Equal(t, 5, cfg.Chat.MaxToolIterations)
}

func TestLoad_InvalidProvider(t *testing.T) {
	t.Setenv("CONVOFLOW_MODEL_PROVIDER", "carrier-pigeon")

	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported model provider")
}
