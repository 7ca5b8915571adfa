package testutil

import "github.com/convoflow/convoflow/core"

// AgentBuilder helps construct agents with fluent chaining for tests.
// Example:
//
//	agent := NewAgentBuilder("Weather").Prompt("Report weather.").Tools("wf1").Build()
type AgentBuilder struct {
	agent core.Agent
}

// NewAgentBuilder creates a builder for an active agent with the given name.
func NewAgentBuilder(name string) *AgentBuilder {
	return &AgentBuilder{agent: core.Agent{ID: "agent-" + name, Name: name, Active: true}}
}

// ID overrides the derived agent id (chainable).
func (b *AgentBuilder) ID(id string) *AgentBuilder { b.agent.ID = id; return b }

// Prompt sets the system prompt (chainable).
func (b *AgentBuilder) Prompt(p string) *AgentBuilder { b.agent.SystemPrompt = p; return b }

// Description sets the agent description (chainable).
func (b *AgentBuilder) Description(d string) *AgentBuilder { b.agent.Description = d; return b }

// Tools assigns workflow tool ids (chainable).
func (b *AgentBuilder) Tools(ids ...string) *AgentBuilder {
	b.agent.ToolIDs = append(b.agent.ToolIDs, ids...)
	return b
}

// Delegates assigns delegation target agent ids (chainable).
func (b *AgentBuilder) Delegates(ids ...string) *AgentBuilder {
	b.agent.DelegateAgentIDs = append(b.agent.DelegateAgentIDs, ids...)
	return b
}

// Namespaces assigns knowledge namespaces (chainable).
func (b *AgentBuilder) Namespaces(ns ...string) *AgentBuilder {
	b.agent.KnowledgeNamespaces = append(b.agent.KnowledgeNamespaces, ns...)
	return b
}

// CodingMode flags the agent as coding-mode (chainable).
func (b *AgentBuilder) CodingMode() *AgentBuilder { b.agent.IsCodingMode = true; return b }

// Inactive clears the active flag (chainable).
func (b *AgentBuilder) Inactive() *AgentBuilder { b.agent.Active = false; return b }

// Build returns the assembled agent.
func (b *AgentBuilder) Build() *core.Agent {
	a := b.agent
	return &a
}
