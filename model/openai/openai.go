// Package openai implements model.Client using the OpenAI Chat Completions
// API, including streaming with tool calling and token usage reporting. It
// adapts convoflow's normalized Request/StreamEvent structures into the SDK's
// message format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// so a complete core.ToolCall can be emitted once the provider signals a
// finish reason.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI client adapter. Fields mirror a minimal
// subset of Chat Completion parameters; extend via functional options.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Client wraps the OpenAI Chat Completions API behind model.Client.
type Client struct {
	api  *openai.Client
	opts Options
}

// NewClient creates a client using the official SDK. When Options.APIKey is
// empty the SDK falls back to OPENAI_API_KEY from the environment.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	api := openai.NewClient(clientOpts...)
	return &Client{api: &api, opts: opts}
}

// NewClientFromAPI creates a client from an existing SDK client.
func NewClientFromAPI(api *openai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{api: api, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Stream implements model.Client. Content deltas are forwarded as they
// arrive; tool calls are aggregated across deltas and emitted complete once
// the stream ends; the terminal done event carries usage totals.
func (c *Client) Stream(ctx context.Context, req model.Request) <-chan model.StreamEvent {
	out := make(chan model.StreamEvent, 32)
	go func() {
		defer close(out)

		params := c.buildParams(req.Messages, req.Tools)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}

		stream := c.api.Chat.Completions.NewStreaming(ctx, params)
		toolAgg := map[int64]*aggCall{}
		order := []int64{}
		var inputTokens, outputTokens int

		for stream.Next() {
			ck := stream.Current()
			if ck.Usage.TotalTokens > 0 {
				inputTokens = int(ck.Usage.PromptTokens)
				outputTokens = int(ck.Usage.CompletionTokens)
			}
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					if !model.Emit(ctx, out, model.StreamEvent{Type: model.StreamDelta, Content: ch.Delta.Content}) {
						return
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
						order = append(order, tc.Index)
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					ac.args += tc.Function.Arguments
				}
			}
		}
		if err := stream.Err(); err != nil {
			model.Emit(ctx, out, model.StreamEvent{Type: model.StreamError, Err: fmt.Errorf("openai streaming error: %w", err)})
			return
		}
		for _, idx := range order {
			ac := toolAgg[idx]
			ok := model.Emit(ctx, out, model.StreamEvent{Type: model.StreamToolCall, ToolCall: &core.ToolCall{
				ID:        ac.id,
				Name:      ac.name,
				Arguments: ac.args,
			}})
			if !ok {
				return
			}
		}
		model.Emit(ctx, out, model.StreamEvent{Type: model.StreamDone, InputTokens: inputTokens, OutputTokens: outputTokens})
	}()
	return out
}

// Complete implements the single-shot path used for delegation and routing.
func (c *Client) Complete(ctx context.Context, messages []model.Message) (string, error) {
	params := c.buildParams(messages, nil)
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "openai"}
}

// buildParams assembles request parameters including tool definitions.
func (c *Client) buildParams(messages []model.Message, tools []core.ToolDefinition) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(messages),
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
	}
	if len(tools) == 0 {
		return params
	}
	defs := make([]openai.ChatCompletionToolParam, len(tools))
	for i, td := range tools {
		defs[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        td.Name,
				Description: openai.String(td.Description),
				Parameters:  td.Parameters,
			},
		}
	}
	params.Tools = defs
	return params
}

// buildMessages converts the normalized transcript into SDK messages,
// preserving tool-call / tool-result linkage by id.
func buildMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			assistant := openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		}
	}
	return out
}
