// Package anthropic implements model.Client using the Anthropic Messages
// API, including streaming with tool use. Text deltas are forwarded as they
// arrive; tool_use blocks are emitted complete from the accumulated message
// once the stream finishes.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
)

// Options configure the Anthropic client adapter (model id, temperature,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Client wraps the Anthropic Messages API behind model.Client.
type Client struct {
	api  *anthropic.Client
	opts Options
}

// NewClient creates a client using the official SDK. When Options.APIKey is
// empty the SDK falls back to ANTHROPIC_API_KEY from the environment.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	api := anthropic.NewClient(clientOpts...)
	return &Client{api: &api, opts: opts}
}

// NewClientFromAPI creates a client from an existing SDK client.
func NewClientFromAPI(api *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{api: api, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Stream implements model.Client.
func (c *Client) Stream(ctx context.Context, req model.Request) <-chan model.StreamEvent {
	out := make(chan model.StreamEvent, 32)
	go func() {
		defer close(out)

		params := c.buildParams(req.Messages, req.Tools)
		stream := c.api.Messages.NewStreaming(ctx, params)

		acc := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				model.Emit(ctx, out, model.StreamEvent{Type: model.StreamError, Err: fmt.Errorf("anthropic accumulate error: %w", err)})
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !model.Emit(ctx, out, model.StreamEvent{Type: model.StreamDelta, Content: delta.Text}) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			model.Emit(ctx, out, model.StreamEvent{Type: model.StreamError, Err: fmt.Errorf("anthropic streaming error: %w", err)})
			return
		}

		for _, block := range acc.Content {
			if block.Type != "tool_use" {
				continue
			}
			tu := block.AsToolUse()
			args := ""
			if tu.Input != nil {
				if raw, err := json.Marshal(tu.Input); err == nil {
					args = string(raw)
				}
			}
			ok := model.Emit(ctx, out, model.StreamEvent{Type: model.StreamToolCall, ToolCall: &core.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			}})
			if !ok {
				return
			}
		}
		model.Emit(ctx, out, model.StreamEvent{
			Type:         model.StreamDone,
			InputTokens:  int(acc.Usage.InputTokens),
			OutputTokens: int(acc.Usage.OutputTokens),
		})
	}()
	return out
}

// Complete implements the single-shot path used for delegation and routing.
func (c *Client) Complete(ctx context.Context, messages []model.Message) (string, error) {
	params := c.buildParams(messages, nil)
	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}
	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return text, nil
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: string(c.opts.Model), Provider: "anthropic"}
}

// buildParams converts the normalized transcript into Messages API
// parameters. System messages become the top-level system blocks; tool
// results are embedded as tool_result blocks in user messages per the API's
// conversation shape.
func (c *Client) buildParams(messages []model.Message, tools []core.ToolDefinition) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}

	var systemBlocks []anthropic.TextBlockParam
	var msgs []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			if m.Content != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: m.Content})
			}
		case core.RoleUser:
			if m.Content != "" {
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}
	params.Messages = msgs
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}
	return params
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []core.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, td := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if td.Parameters != nil {
			if properties, ok := td.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			switch req := td.Parameters["required"].(type) {
			case []string:
				schema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, td.Name)
	}
	return out
}
