package orchestrator

import (
	"context"
	"fmt"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/internal/util"
	"github.com/convoflow/convoflow/model"
)

// buildHistory assembles the model transcript: exactly one system message
// followed by every stored message in sequence order, mapped role-by-role.
// Stored system rows are dropped; the system message is always synthesized
// from the agent's prompt (or the configured fallback) so each request
// carries exactly one.
func (o *Orchestrator) buildHistory(ctx context.Context, agent *core.Agent, conv *core.Conversation, hasTools bool) ([]model.Message, error) {
	system := o.defaultPrompt
	if agent != nil && agent.SystemPrompt != "" {
		system = agent.SystemPrompt
	}
	// Prompts may reference the requesting user, e.g. "Address {{.user_name}}
	// by name". A broken template falls back to the raw prompt.
	rendered, err := util.RenderTemplate(system, map[string]any{
		"user_name":  conv.UserName,
		"user_email": conv.UserEmail,
		"org_id":     conv.OrgID,
	})
	if err != nil {
		o.logger.Warn("system prompt template failed", "error", err)
	} else {
		system = rendered
	}
	if hasTools {
		system = system + "\n\n" + toolInstruction
	}

	stored, err := o.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	history := make([]model.Message, 0, len(stored)+1)
	history = append(history, model.Message{Role: core.RoleSystem, Content: system})
	for _, m := range stored {
		switch m.Role {
		case core.RoleUser:
			history = append(history, model.Message{Role: core.RoleUser, Content: m.Content})
		case core.RoleAssistant:
			history = append(history, model.Message{
				Role:      core.RoleAssistant,
				Content:   m.Content,
				ToolCalls: m.ToolCalls,
			})
		case core.RoleTool:
			history = append(history, model.Message{
				Role:       core.RoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				ToolName:   m.ToolName,
			})
		case core.RoleSystem:
			continue
		}
	}
	return history, nil
}
