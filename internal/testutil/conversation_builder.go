package testutil

import "github.com/convoflow/convoflow/core"

// ConversationBuilder helps construct conversations with fluent chaining for
// tests.
type ConversationBuilder struct {
	conv core.Conversation
}

// NewConversationBuilder creates a builder for a conversation owned by userID.
func NewConversationBuilder(userID string) *ConversationBuilder {
	return &ConversationBuilder{conv: core.Conversation{UserID: userID}}
}

// Agent binds the conversation to an agent id (chainable).
func (b *ConversationBuilder) Agent(id string) *ConversationBuilder { b.conv.AgentID = id; return b }

// Org sets the owning org id (chainable).
func (b *ConversationBuilder) Org(id string) *ConversationBuilder { b.conv.OrgID = id; return b }

// Identity sets the user's email and display name (chainable).
func (b *ConversationBuilder) Identity(email, name string) *ConversationBuilder {
	b.conv.UserEmail = email
	b.conv.UserName = name
	return b
}

// PlatformAdmin flags the owner as a platform admin (chainable).
func (b *ConversationBuilder) PlatformAdmin() *ConversationBuilder {
	b.conv.IsPlatformAdmin = true
	return b
}

// Build returns the assembled conversation.
func (b *ConversationBuilder) Build() *core.Conversation {
	c := b.conv
	return &c
}
