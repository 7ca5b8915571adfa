package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/store"
)

func seedAgents(t *testing.T, s core.Store) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []*core.Agent{
		{Name: "Research Assistant", Description: "Answers research questions.", Active: true},
		{Name: "Billing", Description: "Handles invoices and payments.", Active: true},
		{Name: "Retired", Description: "No longer in service.", Active: false},
	} {
		_, err := s.CreateAgent(ctx, a)
		require.NoError(t, err)
	}
}

func TestModelRouter_ParseMention(t *testing.T) {
	s := store.NewMemoryStore()
	seedAgents(t, s)
	r := NewModelRouter(s, model.NewScriptedClient())
	ctx := context.Background()

	agent, err := r.ParseMention(ctx, "@billing why was I charged twice?")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "Billing", agent.Name)

	agent, err = r.ParseMention(ctx, "hey @Research_Assistant can you look this up")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "Research Assistant", agent.Name)
}

func TestModelRouter_ParseMentionNoMatch(t *testing.T) {
	s := store.NewMemoryStore()
	seedAgents(t, s)
	r := NewModelRouter(s, model.NewScriptedClient())
	ctx := context.Background()

	agent, err := r.ParseMention(ctx, "no mention here")
	require.NoError(t, err)
	assert.Nil(t, agent)

	agent, err = r.ParseMention(ctx, "@unknown_agent hello")
	require.NoError(t, err)
	assert.Nil(t, agent)

	// Inactive agents are never mention targets.
	agent, err = r.ParseMention(ctx, "@retired hello")
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestModelRouter_StripMention(t *testing.T) {
	r := NewModelRouter(store.NewMemoryStore(), model.NewScriptedClient())

	assert.Equal(t, "why was I charged twice?", r.StripMention("@billing why was I charged twice?"))
	assert.Equal(t, "plain text", r.StripMention("plain text"))

	// Only the first mention is a directive; later ones are content.
	assert.Equal(t, "ask @billing about this invoice", r.StripMention("@research_assistant ask @billing about this invoice"))
}

func TestModelRouter_RouteMessage(t *testing.T) {
	s := store.NewMemoryStore()
	seedAgents(t, s)
	client := model.NewScriptedClient()
	client.QueueCompletion("Billing")
	r := NewModelRouter(s, client)

	agent, err := r.RouteMessage(context.Background(), "my invoice looks wrong", false)
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "Billing", agent.Name)
	assert.Equal(t, 1, client.CompleteCalls)
}

func TestModelRouter_RouteMessageNone(t *testing.T) {
	s := store.NewMemoryStore()
	seedAgents(t, s)
	client := model.NewScriptedClient()
	client.QueueCompletion("none")
	r := NewModelRouter(s, client)

	agent, err := r.RouteMessage(context.Background(), "random chatter", false)
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestModelRouter_RouteMessageNoAgents(t *testing.T) {
	client := model.NewScriptedClient()
	r := NewModelRouter(store.NewMemoryStore(), client)

	agent, err := r.RouteMessage(context.Background(), "anything", false)
	require.NoError(t, err)
	assert.Nil(t, agent)
	assert.Zero(t, client.CompleteCalls)
}

func TestModelRouter_RouteMessageModelError(t *testing.T) {
	s := store.NewMemoryStore()
	seedAgents(t, s)
	client := model.NewScriptedClient()
	client.FailCompletions(errors.New("rate limited"))
	r := NewModelRouter(s, client)

	agent, err := r.RouteMessage(context.Background(), "my invoice looks wrong", false)
	assert.Error(t, err)
	assert.Nil(t, agent)
}
