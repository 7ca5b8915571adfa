package core

import "time"

// Role identifies the author of a stored message.
type Role string

// Message roles. Stored system rows beyond the first are dropped during
// history assembly so each model request carries exactly one system message.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the four stored roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// Message is one turn in a conversation's append-only ledger. Created once,
// never mutated, never deleted. Sequence is unique per conversation and
// assigned by the store at append time.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Sequence       int        `json:"sequence"`
	Role           Role       `json:"role"`
	Content        string     `json:"content,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`   // role=assistant only
	ToolCallID     string     `json:"tool_call_id,omitempty"` // role=tool only
	ToolName       string     `json:"tool_name,omitempty"`
	ExecutionID    string     `json:"execution_id,omitempty"`
	InputTokens    int        `json:"input_tokens,omitempty"`
	OutputTokens   int        `json:"output_tokens,omitempty"`
	Model          string     `json:"model,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AppendMessage is the payload accepted by Store.AppendMessage. The store
// assigns ID, Sequence and CreatedAt and bumps the conversation's UpdatedAt.
type AppendMessage struct {
	ConversationID string
	Role           Role
	Content        string
	ToolCalls      []ToolCall
	ToolCallID     string
	ToolName       string
	ExecutionID    string
	InputTokens    int
	OutputTokens   int
	Model          string
	DurationMs     int64
}
