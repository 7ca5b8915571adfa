package convoflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/orchestrator"
)

func TestChatSync_RoundTrip(t *testing.T) {
	client := model.NewScriptedClient(model.ScriptedTurn{Deltas: []string{"Hello"}, InputTokens: 4, OutputTokens: 1})
	cf := New(client, func(o *Options) { o.RecordUsage = true })
	ctx := context.Background()

	conv, err := cf.NewConversation(ctx, &core.Conversation{UserID: "u1"})
	require.NoError(t, err)

	chunks, terminal, err := cf.ChatSync(ctx, orchestrator.ChatRequest{
		Conversation: conv,
		UserMessage:  "Hi",
	})
	require.NoError(t, err)
	require.NotNil(t, terminal)
	assert.Equal(t, core.ChunkDone, terminal.Type)
	assert.Equal(t, "Hello", terminal.Content)
	assert.NotEmpty(t, chunks)

	recs, err := cf.Store().ListUsage(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].InputTokens)
}

func TestChat_ResolvesBoundAgent(t *testing.T) {
	client := model.NewScriptedClient(model.ScriptedTurn{Deltas: []string{"ok"}})
	cf := New(client)
	ctx := context.Background()

	agent, err := cf.Store().CreateAgent(ctx, &core.Agent{Name: "Billing", SystemPrompt: "You handle billing.", Active: true})
	require.NoError(t, err)
	conv, err := cf.NewConversation(ctx, &core.Conversation{UserID: "u1", AgentID: agent.ID})
	require.NoError(t, err)

	_, terminal, err := cf.ChatSync(ctx, orchestrator.ChatRequest{
		Conversation: conv,
		UserMessage:  "Hi",
	})
	require.NoError(t, err)
	require.NotNil(t, terminal)
	assert.Equal(t, core.ChunkDone, terminal.Type)

	// The bound agent's prompt reached the model.
	require.Len(t, client.Requests, 1)
	assert.Contains(t, client.Requests[0].Messages[0].Content, "You handle billing.")
}
