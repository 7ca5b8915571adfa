package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups when the entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract consumed by the orchestrator and its
// collaborators. Implementations must serialize sequence assignment per
// conversation so that concurrent appends never produce duplicate sequences,
// and must bump the conversation's UpdatedAt on every append.
//
// Conversations and messages form an append-only ledger: messages are created
// once and never mutated or deleted by this module.
type Store interface {
	// Conversations.
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// SetConversationAgent re-binds the conversation to an agent and returns
	// a fresh snapshot. It is the only mutation of Conversation.AgentID.
	SetConversationAgent(ctx context.Context, conversationID, agentID string) (*Conversation, error)

	// Messages.
	AppendMessage(ctx context.Context, msg AppendMessage) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID string, role Role) (int, error)

	// Agents (read-only from the orchestrator's perspective).
	CreateAgent(ctx context.Context, agent *Agent) (*Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListActiveAgents(ctx context.Context) ([]*Agent, error)

	// Workflows registered as chat tools.
	CreateWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error)
	ListWorkflows(ctx context.Context, ids []string) ([]*Workflow, error)
	// FindWorkflowTool resolves an active workflow by name whose IsTool flag
	// is set. Returns ErrNotFound when no such workflow exists.
	FindWorkflowTool(ctx context.Context, name string) (*Workflow, error)

	// Usage ledger.
	RecordUsage(ctx context.Context, rec *UsageRecord) (*UsageRecord, error)
	ListUsage(ctx context.Context, conversationID string) ([]*UsageRecord, error)
}
