package convoflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/config"
	"github.com/convoflow/convoflow/core"
)

func TestNewFromConfig_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cf, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, cf)

	// The default memory store is live and usable.
	conv, err := cf.NewConversation(context.Background(), &core.Conversation{UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
}

func TestNewFromConfig_SQLiteDriver(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "chat.db")

	cf, err := NewFromConfig(cfg)
	require.NoError(t, err)

	conv, err := cf.NewConversation(context.Background(), &core.Conversation{UserID: "u1"})
	require.NoError(t, err)

	got, err := cf.Store().GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestNewFromConfig_AnthropicProvider(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Model.Provider = "anthropic"
	cfg.Model.Name = "claude-sonnet-4-20250514"

	cf, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, cf)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Model.Provider = "parrot"

	_, err = NewFromConfig(cfg)
	assert.ErrorContains(t, err, "parrot")

	cfg, err = config.Load("")
	require.NoError(t, err)
	cfg.Store.Driver = "oracle"

	_, err = NewFromConfig(cfg)
	assert.ErrorContains(t, err, "oracle")
}
