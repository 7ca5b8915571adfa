package orchestrator

import (
	"context"
	"fmt"

	"github.com/convoflow/convoflow/core"
)

// route decides whether this run should switch agents. Mention resolution
// wins; model routing is consulted only for the very first user message of an
// agentless conversation. Routing is best effort: resolution failures log and
// fall through to "no switch".
func (o *Orchestrator) route(ctx context.Context, agent *core.Agent, conv *core.Conversation, text string, isPlatformAdmin bool) (*core.Agent, string, string) {
	target, err := o.router.ParseMention(ctx, text)
	if err != nil {
		o.logger.Warn("mention resolution failed", "error", err)
	}
	if target != nil {
		return target, core.SwitchReasonMention, o.router.StripMention(text)
	}

	if agent != nil {
		return nil, "", text
	}
	count, err := o.store.CountMessages(ctx, conv.ID, core.RoleUser)
	if err != nil {
		o.logger.Warn("counting user messages failed", "error", err)
		return nil, "", text
	}
	if count > 0 {
		return nil, "", text
	}

	target, err = o.router.RouteMessage(ctx, text, isPlatformAdmin)
	if err != nil {
		o.logger.Warn("model routing failed", "error", err)
		return nil, "", text
	}
	if target == nil {
		return nil, "", text
	}
	return target, core.SwitchReasonRouted, text
}

// switchAgent is the only path that re-binds a conversation. Ordering is
// fixed: emit agent_switch, persist the binding, then apply the coding-mode
// rule. terminal is true when the run must stop (coding-mode hand-off or a
// departed consumer). The returned conversation is a fresh snapshot carrying
// the new binding.
func (o *Orchestrator) switchAgent(ctx context.Context, conv *core.Conversation, target *core.Agent, reason string, emit emitFunc) (*core.Conversation, bool, error) {
	if !emit(core.NewAgentSwitchChunk(target, reason)) {
		return nil, true, nil
	}

	updated, err := o.store.SetConversationAgent(ctx, conv.ID, target.ID)
	if err != nil {
		return nil, false, fmt.Errorf("persist agent switch: %w", err)
	}

	if target.IsCodingMode {
		emit(core.NewCodingModeChunk(target))
		return updated, true, nil
	}
	return updated, false, nil
}
