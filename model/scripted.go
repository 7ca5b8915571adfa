package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/convoflow/convoflow/core"
)

// ScriptedTurn is one pre-programmed model response for ScriptedClient.
type ScriptedTurn struct {
	Deltas       []string        // streamed content fragments, in order
	ToolCalls    []core.ToolCall // tool calls requested after the deltas
	InputTokens  int
	OutputTokens int
	Err          error // when set, the turn emits only an error event
}

// ScriptedClient is a deterministic in-memory Client for tests and demos.
// Each Stream call consumes the next scripted turn; Complete consumes the
// next queued completion. All bookkeeping is safe for concurrent use.
type ScriptedClient struct {
	mu          sync.Mutex
	info        Info
	turns       []ScriptedTurn
	completions []string
	completeErr error

	StreamCalls   int
	CompleteCalls int
	Requests      []Request // copy of every Stream request, for assertions
}

// NewScriptedClient constructs a client that plays back the given turns.
func NewScriptedClient(turns ...ScriptedTurn) *ScriptedClient {
	return &ScriptedClient{
		info:  Info{Name: "scripted-1", Provider: "scripted"},
		turns: turns,
	}
}

// QueueCompletion appends canned responses for Complete.
func (c *ScriptedClient) QueueCompletion(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, responses...)
}

// FailCompletions makes every subsequent Complete call return err.
func (c *ScriptedClient) FailCompletions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completeErr = err
}

// Stream implements Client by replaying the next scripted turn.
func (c *ScriptedClient) Stream(ctx context.Context, req Request) <-chan StreamEvent {
	c.mu.Lock()
	c.StreamCalls++
	c.Requests = append(c.Requests, req)
	var turn ScriptedTurn
	if len(c.turns) > 0 {
		turn = c.turns[0]
		c.turns = c.turns[1:]
	}
	c.mu.Unlock()

	out := make(chan StreamEvent, len(turn.Deltas)+len(turn.ToolCalls)+1)
	go func() {
		defer close(out)
		if turn.Err != nil {
			out <- StreamEvent{Type: StreamError, Err: turn.Err}
			return
		}
		for _, d := range turn.Deltas {
			select {
			case <-ctx.Done():
				out <- StreamEvent{Type: StreamError, Err: ctx.Err()}
				return
			case out <- StreamEvent{Type: StreamDelta, Content: d}:
			}
		}
		for _, tc := range turn.ToolCalls {
			call := tc
			select {
			case <-ctx.Done():
				out <- StreamEvent{Type: StreamError, Err: ctx.Err()}
				return
			case out <- StreamEvent{Type: StreamToolCall, ToolCall: &call}:
			}
		}
		out <- StreamEvent{Type: StreamDone, InputTokens: turn.InputTokens, OutputTokens: turn.OutputTokens}
	}()
	return out
}

// Complete implements Client by returning the next queued completion.
func (c *ScriptedClient) Complete(_ context.Context, _ []Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls++
	if c.completeErr != nil {
		return "", c.completeErr
	}
	if len(c.completions) == 0 {
		return "", fmt.Errorf("scripted client: no completion queued")
	}
	resp := c.completions[0]
	c.completions = c.completions[1:]
	return resp, nil
}

// Info implements Client.
func (c *ScriptedClient) Info() Info { return c.info }
