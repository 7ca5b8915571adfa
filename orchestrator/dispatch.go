package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/internal/util"
	"github.com/convoflow/convoflow/knowledge"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/tool"
	"github.com/convoflow/convoflow/workflow"
)

// defaultKnowledgeLimit caps search_knowledge results when the model passes
// no limit argument.
const defaultKnowledgeLimit = 5

// dispatcher executes tool calls. Dispatch never raises: every failure,
// including a panicking collaborator, is folded into ToolResult.Error.
type dispatcher struct {
	store    core.Store
	client   model.Client
	runner   workflow.Runner
	embedder knowledge.Embedder
	searcher knowledge.Searcher
	logger   logging.Logger
	chatLog  *logging.ChatLogger
}

// Dispatch routes one tool call to knowledge search, delegation or workflow
// execution. The kind comes from the run's toolset when the name was
// registered there; names the model invented fall back to the same closed
// classification so they still fail with a precise error. DurationMs is
// recorded on every path.
func (d *dispatcher) Dispatch(ctx context.Context, call core.ToolCall, ts *toolset, agent *core.Agent, conv *core.Conversation, executionID string) (res core.ToolResult) {
	start := time.Now()
	res = core.ToolResult{ToolCallID: call.ID, ToolName: call.Name}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool dispatch panicked", "tool", call.Name, "panic", r)
			res.Error = fmt.Sprintf("tool %q panicked: %v", call.Name, r)
			res.Result = nil
		}
		res.DurationMs = time.Since(start).Milliseconds()
		if d.chatLog != nil {
			var convID string
			if conv != nil {
				convID = conv.ID
			}
			var callErr error
			if res.Error != "" {
				callErr = errors.New(res.Error)
			}
			d.chatLog.WithConversation(convID, executionID).LogToolCall(call.Name, time.Since(start), res.Error == "", callErr)
		}
	}()

	args, err := parseArguments(call.Arguments)
	if err != nil {
		res.Error = fmt.Sprintf("invalid tool arguments: %v", err)
		return
	}

	switch d.resolveKind(call.Name, ts, agent) {
	case core.ToolKindKnowledge:
		d.searchKnowledge(ctx, agent, conv, args, &res)
	case core.ToolKindDelegation:
		d.delegate(ctx, call.Name, ts, args, &res)
	default:
		d.runWorkflow(ctx, call.Name, args, conv, executionID, &res)
	}
	return
}

// resolveKind prefers the kind registered in the toolset and classifies
// unregistered names by the same closed rules. Knowledge and delegation both
// require a bound agent; without one everything goes down the workflow path,
// where unknown names fail closed.
func (d *dispatcher) resolveKind(name string, ts *toolset, agent *core.Agent) core.ToolKind {
	if ts != nil {
		if kind, ok := ts.kinds[name]; ok {
			return kind
		}
	}
	if agent == nil {
		return core.ToolKindWorkflow
	}
	if name == tool.SearchKnowledgeToolName {
		return core.ToolKindKnowledge
	}
	if _, ok := tool.DelegateSlug(name); ok {
		return core.ToolKindDelegation
	}
	return core.ToolKindWorkflow
}

// searchKnowledge embeds the query and searches the agent's namespaces with
// org-plus-global fallback. Argument validation happens before any embedding
// call is made.
func (d *dispatcher) searchKnowledge(ctx context.Context, agent *core.Agent, conv *core.Conversation, args map[string]any, res *core.ToolResult) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		res.Error = "search_knowledge requires a non-empty 'query' argument"
		return
	}
	if agent == nil || len(agent.KnowledgeNamespaces) == 0 {
		res.Error = "agent has no knowledge sources configured"
		return
	}
	if d.embedder == nil || d.searcher == nil {
		res.Error = "knowledge search is not configured"
		return
	}

	limit := defaultKnowledgeLimit
	if raw, ok := args["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
	}

	searchStart := time.Now()
	embedding, err := d.embedder.EmbedSingle(ctx, query)
	if err != nil {
		res.Error = fmt.Sprintf("embed query: %v", err)
		return
	}

	var orgID string
	if conv != nil {
		orgID = conv.OrgID
	}
	docs, err := d.searcher.Search(ctx, embedding, agent.KnowledgeNamespaces, orgID, limit, true)
	if err != nil {
		res.Error = fmt.Sprintf("knowledge search: %v", err)
		return
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	if d.chatLog != nil {
		d.chatLog.LogPerformance("knowledge_search", time.Since(searchStart), map[string]interface{}{
			"documents":  len(docs),
			"namespaces": len(agent.KnowledgeNamespaces),
		})
	}
	res.Result = map[string]any{"documents": docs, "count": len(docs)}
}

// delegate hands a task to another agent as a single-turn completion: the
// delegate sees only its own system prompt and the task, never the shared
// conversation history, and cannot call tools.
func (d *dispatcher) delegate(ctx context.Context, name string, ts *toolset, args map[string]any, res *core.ToolResult) {
	task, _ := args["task"].(string)
	task = strings.TrimSpace(task)
	if task == "" {
		res.Error = "delegation requires a non-empty 'task' argument"
		return
	}

	delegate, err := d.resolveDelegate(ctx, name, ts)
	if err != nil {
		res.Error = err.Error()
		return
	}

	response, err := d.client.Complete(ctx, []model.Message{
		{Role: core.RoleSystem, Content: delegate.SystemPrompt},
		{Role: core.RoleUser, Content: task},
	})
	if err != nil {
		res.Error = fmt.Sprintf("delegation to %q failed: %v", delegate.Name, err)
		return
	}
	res.Result = map[string]any{"response": response, "agent": delegate.Name}
}

// resolveDelegate finds the delegation target: the toolset binding when the
// tool was registered, otherwise a case-insensitive substring match of the
// slug against active agent names. Ambiguous substring matches resolve to
// the agent with the shortest name so resolution is deterministic.
func (d *dispatcher) resolveDelegate(ctx context.Context, name string, ts *toolset) (*core.Agent, error) {
	if ts != nil {
		if delegate, ok := ts.delegates[name]; ok {
			return delegate, nil
		}
	}

	slug, ok := tool.DelegateSlug(name)
	if !ok || slug == "" {
		return nil, fmt.Errorf("invalid delegation tool name %q", name)
	}

	agents, err := d.store.ListActiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve delegation target %q: %v", slug, err)
	}
	var best *core.Agent
	for _, a := range agents {
		if !strings.Contains(tool.Slugify(a.Name), slug) {
			continue
		}
		if best == nil || len(a.Name) < len(best.Name) {
			best = a
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no active agent matches delegation target %q", slug)
	}
	return best, nil
}

// runWorkflow resolves an active tool workflow by name and hands it to the
// runner with the conversation's user identity. Unknown names fail closed.
func (d *dispatcher) runWorkflow(ctx context.Context, name string, args map[string]any, conv *core.Conversation, executionID string, res *core.ToolResult) {
	wf, err := d.store.FindWorkflowTool(ctx, name)
	if errors.Is(err, core.ErrNotFound) {
		res.Error = fmt.Sprintf("Tool '%s' not found", name)
		return
	}
	if err != nil {
		res.Error = fmt.Sprintf("resolve workflow %q: %v", name, err)
		return
	}
	if d.runner == nil {
		res.Error = "no workflow runner configured"
		return
	}
	if wf.Parameters != nil {
		if err := util.ValidateParameters(args, wf.Parameters); err != nil {
			res.Error = err.Error()
			return
		}
	}

	req := workflow.Request{
		WorkflowID:  wf.ID,
		Name:        wf.Name,
		Arguments:   args,
		UserID:      "system",
		ExecutionID: executionID,
	}
	if conv != nil && conv.UserID != "" {
		req.UserID = conv.UserID
		req.UserEmail = conv.UserEmail
		req.UserName = conv.UserName
		req.OrgID = conv.OrgID
		req.IsPlatformAdmin = conv.IsPlatformAdmin
	}

	out, err := d.runner.Execute(ctx, req)
	if err != nil {
		res.Error = fmt.Sprintf("workflow %q: %v", wf.Name, err)
		return
	}
	if !out.OK() {
		if out.Error != "" {
			res.Error = out.Error
		} else {
			res.Error = fmt.Sprintf("workflow %q failed with status %q", wf.Name, out.Status)
		}
		return
	}
	res.Result = out.Result
}

// parseArguments decodes the serialized JSON argument payload of a tool
// call. An empty payload is a valid empty argument set.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// serializeResult renders a ToolResult for persistence as the tool message
// content: the error string when the call failed, the JSON-encoded result
// otherwise.
func serializeResult(res core.ToolResult) string {
	if res.Error != "" {
		return res.Error
	}
	encoded, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf("unserializable tool result: %v", err)
	}
	return string(encoded)
}
