// Package orchestrator implements the bounded chat-completion loop: it turns
// one user message into one finished assistant turn while coordinating model
// streaming, tool dispatch, agent hand-off and usage accounting. Output is a
// finite channel of ChatStreamChunk values ending in exactly one terminal
// chunk.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/knowledge"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/routing"
	"github.com/convoflow/convoflow/tool"
	"github.com/convoflow/convoflow/usage"
	"github.com/convoflow/convoflow/workflow"
)

// MaxToolIterations is the default cap on model-stream calls per run. The cap
// is soft: reaching it finalizes with whatever content was last accumulated
// instead of failing the run.
const MaxToolIterations = 10

// DefaultSystemPrompt is the hard-coded fallback used for agentless
// conversations when no override is configured.
const DefaultSystemPrompt = "You are a helpful assistant."

// toolInstruction is appended to the system prompt whenever the run exposes
// tools, steering the model toward invoking them instead of narrating.
const toolInstruction = "When a task can be accomplished with one of your tools, call the tool. Do not describe what you would do instead of doing it."

// Options configures an Orchestrator.
type Options struct {
	// Registry resolves the agent's assigned workflow tool ids to
	// definitions. Defaults to a store-backed registry.
	Registry tool.Registry

	// Runner executes workflow tools. Without one, workflow tool calls
	// fail with an error result.
	Runner workflow.Runner

	// Router resolves @mentions and model-based routing. Without one,
	// enable_routing is a no-op.
	Router routing.Router

	// Embedder and Searcher back the built-in search_knowledge tool.
	Embedder knowledge.Embedder
	Searcher knowledge.Searcher

	// Recorder receives per-run usage telemetry. Defaults to a no-op.
	Recorder usage.Recorder

	Logger logging.Logger

	// MaxToolIterations overrides the model-call cap per run.
	MaxToolIterations int

	// DefaultSystemPrompt overrides the agentless fallback prompt.
	DefaultSystemPrompt string
}

// Orchestrator owns the chat state machine. One instance serves many
// concurrent conversations; all per-run state lives on the stack of a single
// Chat call.
type Orchestrator struct {
	store    core.Store
	client   model.Client
	registry tool.Registry
	router   routing.Router
	recorder usage.Recorder
	logger   logging.Logger
	chatLog  *logging.ChatLogger
	dispatch *dispatcher

	maxIterations int
	defaultPrompt string
}

// domainLogger unwraps a ChatLogger when the configured Logger is one, so the
// richer domain helpers (per-run and per-tool metrics) light up without a
// second configuration knob. Plain Logger implementations return nil.
func domainLogger(l logging.Logger, component string) *logging.ChatLogger {
	if cl, ok := l.(*logging.ChatLogger); ok {
		return cl.WithComponent(component)
	}
	return nil
}

// New creates an Orchestrator over a store and a model client.
func New(store core.Store, client model.Client, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Registry:            tool.NewStoreRegistry(store),
		Recorder:            usage.NopRecorder{},
		Logger:              logging.NoOpLogger{},
		MaxToolIterations:   MaxToolIterations,
		DefaultSystemPrompt: DefaultSystemPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		store:    store,
		client:   client,
		registry: opts.Registry,
		router:   opts.Router,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		chatLog:  domainLogger(opts.Logger, "orchestrator"),
		dispatch: &dispatcher{
			store:    store,
			client:   client,
			runner:   opts.Runner,
			embedder: opts.Embedder,
			searcher: opts.Searcher,
			logger:   opts.Logger,
			chatLog:  domainLogger(opts.Logger, "dispatch"),
		},
		maxIterations: opts.MaxToolIterations,
		defaultPrompt: opts.DefaultSystemPrompt,
	}
}

// ChatRequest carries the inputs of one run.
type ChatRequest struct {
	// Agent the conversation is currently bound to, nil when agentless.
	Agent *core.Agent

	// Conversation the turn belongs to. Required.
	Conversation *core.Conversation

	// UserMessage is the raw user text, possibly carrying an @mention.
	UserMessage string

	// Stream controls whether delta and tool_call chunks are re-emitted
	// live. All other chunk kinds are emitted regardless.
	Stream bool

	// EnableRouting turns on mention parsing and first-message routing.
	EnableRouting bool

	// IsPlatformAdmin widens the routing candidate set for admins.
	IsPlatformAdmin bool
}

// emitFunc delivers one chunk to the consumer. It returns false when the
// consumer is gone and the run should abort.
type emitFunc func(core.ChatStreamChunk) bool

// Chat runs the full state machine for one user message. The returned channel
// is unbuffered so the consumer drives the pace; closing happens after the
// terminal chunk. Abandoning the channel mid-run aborts further work once ctx
// is cancelled.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) <-chan core.ChatStreamChunk {
	out := make(chan core.ChatStreamChunk)

	// Captured up front: the recovery path below must never dereference the
	// request again, or a nil-conversation panic would re-panic inside it.
	var conversationID string
	if req.Conversation != nil {
		conversationID = req.Conversation.ID
	}

	emit := func(chunk core.ChatStreamChunk) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- chunk:
			return true
		}
	}

	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("chat run panicked", "panic", r, "conversation_id", conversationID)
				emit(core.NewErrorChunk(fmt.Sprintf("internal error: %v", r)))
			}
		}()

		if err := o.run(ctx, req, emit); err != nil {
			if o.chatLog != nil {
				o.chatLog.WithConversation(conversationID, "").ErrorWithStack(err, "chat run failed")
			} else {
				o.logger.Error("chat run failed", "error", err, "conversation_id", conversationID)
			}
			emit(core.NewErrorChunk(err.Error()))
		}
	}()

	return out
}

// run executes the state machine. A non-nil return is reported to the
// consumer as the terminal error chunk; a nil return means a terminal chunk
// was already emitted (done or coding_mode_required) or the consumer left.
func (o *Orchestrator) run(ctx context.Context, req ChatRequest, emit emitFunc) error {
	agent := req.Agent
	conv := req.Conversation
	text := req.UserMessage
	start := time.Now()

	// ROUTE
	if req.EnableRouting && o.router != nil {
		target, reason, stripped := o.route(ctx, agent, conv, text, req.IsPlatformAdmin)
		if target != nil {
			text = stripped
			updated, terminal, err := o.switchAgent(ctx, conv, target, reason, emit)
			if err != nil {
				return err
			}
			if terminal {
				return nil
			}
			conv = updated
			agent = target
		}
	}

	// PERSIST_USER
	if _, err := o.store.AppendMessage(ctx, core.AppendMessage{
		ConversationID: conv.ID,
		Role:           core.RoleUser,
		Content:        text,
	}); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	// BUILD_CONTEXT
	ts, err := o.buildToolset(ctx, agent)
	if err != nil {
		return err
	}
	history, err := o.buildHistory(ctx, agent, conv, len(ts.defs) > 0)
	if err != nil {
		return err
	}

	// ITERATE
	info := o.client.Info()
	var finalContent string
	var totalIn, totalOut, iterations int

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		iterations++
		turnStart := time.Now()
		turn, err := o.streamTurn(ctx, history, ts.defs, req.Stream, emit)
		if o.chatLog != nil {
			tokens := 0
			if turn != nil {
				tokens = turn.inputTokens + turn.outputTokens
			}
			o.chatLog.WithConversation(conv.ID, "").LogLLMCall(info.Name, tokens, time.Since(turnStart), err == nil, err)
		}
		if err != nil {
			return err
		}
		totalIn += turn.inputTokens
		totalOut += turn.outputTokens
		finalContent = turn.content

		if len(turn.calls) == 0 {
			break
		}

		if _, err := o.store.AppendMessage(ctx, core.AppendMessage{
			ConversationID: conv.ID,
			Role:           core.RoleAssistant,
			Content:        turn.content,
			ToolCalls:      turn.calls,
			InputTokens:    turn.inputTokens,
			OutputTokens:   turn.outputTokens,
			Model:          info.Name,
		}); err != nil {
			return fmt.Errorf("persist assistant turn: %w", err)
		}
		history = append(history, model.Message{
			Role:      core.RoleAssistant,
			Content:   turn.content,
			ToolCalls: turn.calls,
		})

		for _, call := range turn.calls {
			executionID := core.NewExecutionID()
			if !emit(core.NewToolProgressChunk(call, executionID, "running")) {
				return nil
			}

			result := o.dispatch.Dispatch(ctx, call, ts, agent, conv, executionID)
			if !emit(core.NewToolResultChunk(result)) {
				return nil
			}

			content := serializeResult(result)
			if _, err := o.store.AppendMessage(ctx, core.AppendMessage{
				ConversationID: conv.ID,
				Role:           core.RoleTool,
				Content:        content,
				ToolCallID:     call.ID,
				ToolName:       call.Name,
				ExecutionID:    executionID,
				DurationMs:     result.DurationMs,
			}); err != nil {
				return fmt.Errorf("persist tool result: %w", err)
			}
			history = append(history, model.Message{
				Role:       core.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	// FINALIZE
	durationMs := time.Since(start).Milliseconds()
	final, err := o.store.AppendMessage(ctx, core.AppendMessage{
		ConversationID: conv.ID,
		Role:           core.RoleAssistant,
		Content:        finalContent,
		InputTokens:    totalIn,
		OutputTokens:   totalOut,
		Model:          info.Name,
		DurationMs:     durationMs,
	})
	if err != nil {
		return fmt.Errorf("persist final assistant message: %w", err)
	}

	if err := o.recorder.Record(ctx, &core.UsageRecord{
		Provider:       info.Provider,
		Model:          info.Name,
		InputTokens:    totalIn,
		OutputTokens:   totalOut,
		DurationMs:     durationMs,
		ConversationID: conv.ID,
		MessageID:      final.ID,
		OrgID:          conv.OrgID,
		UserID:         conv.UserID,
	}); err != nil {
		o.logger.Error("usage recording failed", "error", err, "conversation_id", conv.ID)
	}

	if o.chatLog != nil {
		agentName := ""
		if agent != nil {
			agentName = agent.Name
		}
		o.chatLog.WithConversation(conv.ID, "").LogChatRun(agentName, iterations, time.Since(start), true, nil)
	}

	emit(core.NewDoneChunk(finalContent, final.ID, totalIn, totalOut, durationMs))
	return nil
}

// streamedTurn is what one model-stream call produced.
type streamedTurn struct {
	content      string
	calls        []core.ToolCall
	inputTokens  int
	outputTokens int
}

// streamTurn consumes one model stream, re-emitting deltas and tool calls
// live when streaming is on. A model error event aborts the run.
func (o *Orchestrator) streamTurn(ctx context.Context, history []model.Message, defs []core.ToolDefinition, stream bool, emit emitFunc) (*streamedTurn, error) {
	events := o.client.Stream(ctx, model.Request{Messages: history, Tools: defs})

	var content strings.Builder
	turn := &streamedTurn{}
	for ev := range events {
		switch ev.Type {
		case model.StreamDelta:
			content.WriteString(ev.Content)
			if stream {
				if !emit(core.NewDeltaChunk(ev.Content)) {
					return nil, ctx.Err()
				}
			}
		case model.StreamToolCall:
			if ev.ToolCall == nil {
				continue
			}
			turn.calls = append(turn.calls, *ev.ToolCall)
			if stream {
				if !emit(core.NewToolCallChunk(*ev.ToolCall)) {
					return nil, ctx.Err()
				}
			}
		case model.StreamDone:
			turn.inputTokens = ev.InputTokens
			turn.outputTokens = ev.OutputTokens
		case model.StreamError:
			return nil, fmt.Errorf("model stream: %w", ev.Err)
		}
	}
	turn.content = content.String()
	return turn, nil
}
