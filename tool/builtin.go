package tool

import (
	"fmt"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/internal/util"
)

// searchKnowledgeArgs is the argument shape of the built-in knowledge tool.
type searchKnowledgeArgs struct {
	Query string `json:"query" description:"The search query to run against the agent's knowledge sources"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of documents to return (default 5)"`
}

// delegateArgs is the argument shape of every delegation tool.
type delegateArgs struct {
	Task string `json:"task" description:"A self-contained description of the task to hand off"`
}

// SearchKnowledgeDefinition returns the definition of the built-in
// search_knowledge tool.
func SearchKnowledgeDefinition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        SearchKnowledgeToolName,
		Description: "Search the agent's configured knowledge sources for documents relevant to a query.",
		Parameters:  util.CreateSchema(searchKnowledgeArgs{}),
	}
}

// DelegateDefinition returns the hand-off tool definition for one delegate
// agent.
func DelegateDefinition(agent *core.Agent) core.ToolDefinition {
	return core.ToolDefinition{
		Name:        DelegateToolPrefix + Slugify(agent.Name),
		Description: fmt.Sprintf("Delegate a task to the %q agent. %s", agent.Name, agent.Description),
		Parameters:  util.CreateSchema(delegateArgs{}),
	}
}
