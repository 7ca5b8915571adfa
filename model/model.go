// Package model defines the unified LLM client contract used by the
// orchestrator. Vendor adapters (model/openai, model/anthropic) translate the
// normalized Request/StreamEvent structures to and from provider wire
// formats so downstream logic never branches per provider.
package model

import (
	"context"

	"github.com/convoflow/convoflow/core"
)

// Message is one turn of the normalized chat transcript sent to a provider.
type Message struct {
	Role       core.Role       `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []core.ToolCall `json:"tool_calls,omitempty"`   // role=assistant only
	ToolCallID string          `json:"tool_call_id,omitempty"` // role=tool only
	ToolName   string          `json:"tool_name,omitempty"`
}

// Request captures the normalized model input for one generation.
type Request struct {
	Messages []Message             `json:"messages"`
	Tools    []core.ToolDefinition `json:"tools,omitempty"`
}

// StreamEventType tags a StreamEvent.
type StreamEventType string

// Stream event kinds. done and error terminate the stream; done carries the
// provider-reported token usage for the call.
const (
	StreamDelta    StreamEventType = "delta"
	StreamToolCall StreamEventType = "tool_call"
	StreamDone     StreamEventType = "done"
	StreamError    StreamEventType = "error"
)

// StreamEvent is one unit of a streamed generation: a content fragment, a
// completed tool call request, the terminal usage report or an error.
type StreamEvent struct {
	Type         StreamEventType
	Content      string         // delta
	ToolCall     *core.ToolCall // tool_call
	InputTokens  int            // done
	OutputTokens int            // done
	Err          error          // error
}

// Emit delivers one stream event unless ctx is already done, returning false
// when the consumer is gone. Producers must use it for every send so an
// abandoned stream never blocks them once the channel buffer fills.
func Emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// Info describes a concrete client implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Client is the minimal interface the orchestrator needs to drive
// generation. Stream returns a finite channel of events closed after the
// terminal done or error event. Complete is the single-shot, non-streaming
// path used for delegation and model routing.
type Client interface {
	Stream(ctx context.Context, req Request) <-chan StreamEvent

	Complete(ctx context.Context, messages []Message) (string, error)

	// Info returns model name and provider for accounting.
	Info() Info
}
