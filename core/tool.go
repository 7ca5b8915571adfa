package core

// ToolCall is a structured function-invocation request emitted by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // serialized JSON argument payload
}

// ToolResult is the outcome of dispatching one ToolCall. Exactly one of
// Result/Error is set; dispatch never raises, all failures are folded into
// Error.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// OK reports whether the dispatch succeeded.
func (r ToolResult) OK() bool { return r.Error == "" }

// ToolDefinition declaratively exposes a callable function to the model.
// Definitions are built per request and never persisted.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema object
}

// ToolKind is the closed set of dispatch categories. A tool's kind is
// resolved once when the toolset for a run is assembled, not re-derived from
// the name on every call.
type ToolKind int

// Dispatch categories in match order: knowledge search, delegation, workflow.
const (
	ToolKindWorkflow ToolKind = iota
	ToolKindKnowledge
	ToolKindDelegation
)

// String returns a stable label for logging.
func (k ToolKind) String() string {
	switch k {
	case ToolKindKnowledge:
		return "knowledge"
	case ToolKindDelegation:
		return "delegation"
	default:
		return "workflow"
	}
}
