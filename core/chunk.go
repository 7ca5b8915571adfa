package core

import "fmt"

// ChunkType tags a ChatStreamChunk payload.
type ChunkType string

// Chunk types emitted by the orchestrator, in the order they can appear
// within a run. done and error are terminal; a run emits exactly one of them
// unless it was cut short by a coding-mode hand-off.
const (
	ChunkAgentSwitch        ChunkType = "agent_switch"
	ChunkCodingModeRequired ChunkType = "coding_mode_required"
	ChunkDelta              ChunkType = "delta"
	ChunkToolCall           ChunkType = "tool_call"
	ChunkToolProgress       ChunkType = "tool_progress"
	ChunkToolResult         ChunkType = "tool_result"
	ChunkDone               ChunkType = "done"
	ChunkError              ChunkType = "error"
)

// Switch reasons carried by agent_switch chunks.
const (
	SwitchReasonMention = "@mention"
	SwitchReasonRouted  = "routed"
)

// AgentSwitch announces that the conversation was re-bound to another agent.
// It is emitted before any chunk referencing the new agent's tools, and only
// after the new binding has been persisted.
type AgentSwitch struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Reason    string `json:"reason"` // "@mention" or "routed"
}

// ToolProgress reports the lifecycle of one tool execution.
type ToolProgress struct {
	ToolCallID  string `json:"tool_call_id"`
	ToolName    string `json:"tool_name"`
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"` // currently always "running"
}

// ChatStreamChunk is the sole output contract of the orchestrator: a tagged
// union over Type carrying only the fields relevant to its tag. After
// emission a chunk is immutable.
type ChatStreamChunk struct {
	Type         ChunkType     `json:"type"`
	Content      string        `json:"content,omitempty"`
	AgentSwitch  *AgentSwitch  `json:"agent_switch,omitempty"`
	ToolCall     *ToolCall     `json:"tool_call,omitempty"`
	ToolProgress *ToolProgress `json:"tool_progress,omitempty"`
	ToolResult   *ToolResult   `json:"tool_result,omitempty"`
	Error        string        `json:"error,omitempty"`
	MessageID    string        `json:"message_id,omitempty"`
	InputTokens  int           `json:"token_count_input,omitempty"`
	OutputTokens int           `json:"token_count_output,omitempty"`
	DurationMs   int64         `json:"duration_ms,omitempty"`
}

// NewAgentSwitchChunk announces a persisted agent switch.
func NewAgentSwitchChunk(agent *Agent, reason string) ChatStreamChunk {
	return ChatStreamChunk{
		Type:        ChunkAgentSwitch,
		AgentSwitch: &AgentSwitch{AgentID: agent.ID, AgentName: agent.Name, Reason: reason},
	}
}

// NewCodingModeChunk signals the hand-off to an external coding-mode handler.
// No further chunks follow it in the run.
func NewCodingModeChunk(agent *Agent) ChatStreamChunk {
	return ChatStreamChunk{
		Type:        ChunkCodingModeRequired,
		AgentSwitch: &AgentSwitch{AgentID: agent.ID, AgentName: agent.Name},
	}
}

// NewDeltaChunk carries one streamed content fragment.
func NewDeltaChunk(content string) ChatStreamChunk {
	return ChatStreamChunk{Type: ChunkDelta, Content: content}
}

// NewToolCallChunk re-emits a tool call requested by the model.
func NewToolCallChunk(call ToolCall) ChatStreamChunk {
	return ChatStreamChunk{Type: ChunkToolCall, ToolCall: &call}
}

// NewToolProgressChunk reports a tool execution entering the given status.
func NewToolProgressChunk(call ToolCall, executionID, status string) ChatStreamChunk {
	return ChatStreamChunk{
		Type: ChunkToolProgress,
		ToolProgress: &ToolProgress{
			ToolCallID:  call.ID,
			ToolName:    call.Name,
			ExecutionID: executionID,
			Status:      status,
		},
	}
}

// NewToolResultChunk carries the outcome of one dispatched tool call.
func NewToolResultChunk(result ToolResult) ChatStreamChunk {
	return ChatStreamChunk{Type: ChunkToolResult, ToolResult: &result}
}

// NewDoneChunk is the successful terminal chunk with the full final content
// and aggregate accounting for the run.
func NewDoneChunk(content, messageID string, inputTokens, outputTokens int, durationMs int64) ChatStreamChunk {
	return ChatStreamChunk{
		Type:         ChunkDone,
		Content:      content,
		MessageID:    messageID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		DurationMs:   durationMs,
	}
}

// NewErrorChunk is the failure terminal chunk. At most one is emitted per run
// and nothing follows it.
func NewErrorChunk(message string) ChatStreamChunk {
	return ChatStreamChunk{Type: ChunkError, Error: message}
}

// Terminal reports whether the chunk ends the run.
func (c ChatStreamChunk) Terminal() bool {
	return c.Type == ChunkDone || c.Type == ChunkError || c.Type == ChunkCodingModeRequired
}

// Validate checks the union invariant: exactly the payload fields matching
// the chunk's type are populated.
func (c ChatStreamChunk) Validate() error {
	var want func() bool
	switch c.Type {
	case ChunkAgentSwitch, ChunkCodingModeRequired:
		want = func() bool { return c.AgentSwitch != nil && c.ToolCall == nil && c.ToolProgress == nil && c.ToolResult == nil && c.Error == "" }
	case ChunkDelta:
		want = func() bool { return c.AgentSwitch == nil && c.ToolCall == nil && c.ToolProgress == nil && c.ToolResult == nil && c.Error == "" }
	case ChunkToolCall:
		want = func() bool { return c.ToolCall != nil && c.AgentSwitch == nil && c.ToolProgress == nil && c.ToolResult == nil && c.Error == "" }
	case ChunkToolProgress:
		want = func() bool { return c.ToolProgress != nil && c.AgentSwitch == nil && c.ToolCall == nil && c.ToolResult == nil && c.Error == "" }
	case ChunkToolResult:
		want = func() bool { return c.ToolResult != nil && c.AgentSwitch == nil && c.ToolCall == nil && c.ToolProgress == nil && c.Error == "" }
	case ChunkDone:
		want = func() bool { return c.AgentSwitch == nil && c.ToolCall == nil && c.ToolProgress == nil && c.ToolResult == nil && c.Error == "" }
	case ChunkError:
		want = func() bool { return c.Error != "" && c.AgentSwitch == nil && c.ToolCall == nil && c.ToolProgress == nil && c.ToolResult == nil }
	default:
		return fmt.Errorf("unknown chunk type %q", c.Type)
	}
	if !want() {
		return fmt.Errorf("chunk type %q carries payload fields of another type", c.Type)
	}
	return nil
}
