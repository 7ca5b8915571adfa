package core

import "time"

// Agent is a configured persona: a system prompt plus the capabilities the
// orchestrator may expose to the model on its behalf. Agents are read-only
// from the orchestrator's perspective; only CRUD layers outside this module
// mutate them.
type Agent struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	SystemPrompt        string   `json:"system_prompt"`
	ToolIDs             []string `json:"tool_ids,omitempty"`             // assigned workflow tools
	DelegateAgentIDs    []string `json:"delegate_agent_ids,omitempty"`   // directed delegation targets
	KnowledgeNamespaces []string `json:"knowledge_namespaces,omitempty"` // document store namespaces
	IsCodingMode        bool     `json:"is_coding_mode,omitempty"`
	Active              bool     `json:"active"`
}

// Conversation is an ordered thread of messages, optionally bound to one
// agent. The orchestrator treats it as an immutable snapshot: every
// persistence call that changes it returns a fresh copy, and the bound
// agent id is only ever mutated through the switch protocol.
type Conversation struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id,omitempty"` // empty when agentless
	UserID          string    `json:"user_id"`
	UserEmail       string    `json:"user_email,omitempty"`
	UserName        string    `json:"user_name,omitempty"`
	OrgID           string    `json:"org_id,omitempty"`
	IsPlatformAdmin bool      `json:"is_platform_admin,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"` // bumped on every appended message
}

// Workflow is a sandboxed executable registered in the platform. Only
// workflows with IsTool set are callable from a chat turn.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema of tool arguments
	IsTool      bool           `json:"is_tool"`
	Active      bool           `json:"active"`
}

// UsageRecord captures token/cost/duration telemetry for one LLM call chain.
// Recording is best-effort; a failed write never surfaces to the chat caller.
type UsageRecord struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	DurationMs     int64     `json:"duration_ms,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	OrgID          string    `json:"org_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
