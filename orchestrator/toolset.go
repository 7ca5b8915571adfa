package orchestrator

import (
	"context"
	"fmt"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/tool"
)

// toolset is the tool surface of one run: the definitions handed to the
// model plus the dispatch kind of every registered name, resolved once here
// instead of re-derived from name prefixes on each call.
type toolset struct {
	defs      []core.ToolDefinition
	kinds     map[string]core.ToolKind
	delegates map[string]*core.Agent // delegation tool name -> target
}

func (t *toolset) add(def core.ToolDefinition, kind core.ToolKind) {
	t.defs = append(t.defs, def)
	t.kinds[def.Name] = kind
}

// buildToolset assembles the agent's tool surface: its assigned workflow
// tools, one search_knowledge tool when it has knowledge namespaces, and one
// delegation tool per active delegate. An agentless run has no tools.
func (o *Orchestrator) buildToolset(ctx context.Context, agent *core.Agent) (*toolset, error) {
	if o.chatLog != nil {
		defer o.chatLog.StartTimer("toolset_build")()
	}
	ts := &toolset{
		kinds:     map[string]core.ToolKind{},
		delegates: map[string]*core.Agent{},
	}
	if agent == nil {
		return ts, nil
	}

	defs, err := o.registry.Definitions(ctx, agent.ToolIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve workflow tools: %w", err)
	}
	for _, def := range defs {
		ts.add(def, core.ToolKindWorkflow)
	}

	if len(agent.KnowledgeNamespaces) > 0 {
		ts.add(tool.SearchKnowledgeDefinition(), core.ToolKindKnowledge)
	}

	for _, id := range agent.DelegateAgentIDs {
		delegate, err := o.store.GetAgent(ctx, id)
		if err != nil {
			o.logger.Warn("skipping unresolvable delegate", "delegate_id", id, "error", err)
			continue
		}
		if !delegate.Active {
			continue
		}
		def := tool.DelegateDefinition(delegate)
		ts.add(def, core.ToolKindDelegation)
		ts.delegates[def.Name] = delegate
	}

	return ts, nil
}
