package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/convoflow/convoflow/core"
)

// MemoryStore is a volatile core.Store keeping everything in process-local
// maps. Safe for concurrent use; every returned entity is a copy so callers
// cannot mutate internal state.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
	messages      map[string][]*core.Message // conversation id -> ordered messages
	agents        map[string]*core.Agent
	workflows     map[string]*core.Workflow
	usage         []*core.UsageRecord
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*core.Conversation),
		messages:      make(map[string][]*core.Message),
		agents:        make(map[string]*core.Agent),
		workflows:     make(map[string]*core.Workflow),
	}
}

// CreateConversation stores a new conversation, assigning ID and timestamps
// when absent.
func (s *MemoryStore) CreateConversation(_ context.Context, conv *core.Conversation) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *conv
	if c.ID == "" {
		c.ID = core.NewID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.conversations[c.ID] = &c
	out := c
	return &out, nil
}

// GetConversation returns a snapshot of the conversation.
func (s *MemoryStore) GetConversation(_ context.Context, id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *conv
	return &out, nil
}

// SetConversationAgent re-binds the conversation and returns a fresh snapshot.
func (s *MemoryStore) SetConversationAgent(_ context.Context, conversationID, agentID string) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, core.ErrNotFound
	}
	conv.AgentID = agentID
	conv.UpdatedAt = time.Now().UTC()
	out := *conv
	return &out, nil
}

// AppendMessage appends one message, assigning the next sequence under the
// store lock so concurrent appenders to the same conversation serialize.
func (s *MemoryStore) AppendMessage(_ context.Context, msg core.AppendMessage) (*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return nil, core.ErrNotFound
	}

	existing := s.messages[msg.ConversationID]
	m := &core.Message{
		ID:             core.NewID(),
		ConversationID: msg.ConversationID,
		Sequence:       len(existing) + 1,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCalls:      append([]core.ToolCall(nil), msg.ToolCalls...),
		ToolCallID:     msg.ToolCallID,
		ToolName:       msg.ToolName,
		ExecutionID:    msg.ExecutionID,
		InputTokens:    msg.InputTokens,
		OutputTokens:   msg.OutputTokens,
		Model:          msg.Model,
		DurationMs:     msg.DurationMs,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[msg.ConversationID] = append(existing, m)
	conv.UpdatedAt = m.CreatedAt

	out := *m
	return &out, nil
}

// ListMessages returns all messages for the conversation in sequence order.
func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]*core.Message, len(msgs))
	for i, m := range msgs {
		c := *m
		out[i] = &c
	}
	return out, nil
}

// CountMessages counts messages with the given role; an empty role counts all.
func (s *MemoryStore) CountMessages(_ context.Context, conversationID string, role core.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if role == "" {
		return len(s.messages[conversationID]), nil
	}
	n := 0
	for _, m := range s.messages[conversationID] {
		if m.Role == role {
			n++
		}
	}
	return n, nil
}

// CreateAgent stores a new agent, assigning an ID when absent.
func (s *MemoryStore) CreateAgent(_ context.Context, agent *core.Agent) (*core.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *agent
	if a.ID == "" {
		a.ID = core.NewID()
	}
	s.agents[a.ID] = &a
	out := a
	return &out, nil
}

// GetAgent returns a snapshot of the agent.
func (s *MemoryStore) GetAgent(_ context.Context, id string) (*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *agent
	return &out, nil
}

// ListActiveAgents returns all active agents sorted by name.
func (s *MemoryStore) ListActiveAgents(_ context.Context) ([]*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Agent
	for _, a := range s.agents {
		if !a.Active {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateWorkflow stores a new workflow, assigning an ID when absent.
func (s *MemoryStore) CreateWorkflow(_ context.Context, wf *core.Workflow) (*core.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := *wf
	if w.ID == "" {
		w.ID = core.NewID()
	}
	s.workflows[w.ID] = &w
	out := w
	return &out, nil
}

// ListWorkflows resolves workflow ids, silently skipping unknown ones.
func (s *MemoryStore) ListWorkflows(_ context.Context, ids []string) ([]*core.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Workflow, 0, len(ids))
	for _, id := range ids {
		if w, ok := s.workflows[id]; ok {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

// FindWorkflowTool resolves an active tool workflow by exact name.
func (s *MemoryStore) FindWorkflowTool(_ context.Context, name string) (*core.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workflows {
		if w.Active && w.IsTool && strings.EqualFold(w.Name, name) {
			c := *w
			return &c, nil
		}
	}
	return nil, core.ErrNotFound
}

// RecordUsage appends one usage record.
func (s *MemoryStore) RecordUsage(_ context.Context, rec *core.UsageRecord) (*core.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rec
	if r.ID == "" {
		r.ID = core.NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.usage = append(s.usage, &r)
	out := r
	return &out, nil
}

// ListUsage returns usage records for a conversation, oldest first. An empty
// conversation id returns all records.
func (s *MemoryStore) ListUsage(_ context.Context, conversationID string) ([]*core.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.UsageRecord
	for _, r := range s.usage {
		if conversationID != "" && r.ConversationID != conversationID {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}
