// Package convoflow provides a high-level façade over the chat orchestrator
// and its collaborators (stores, routing, knowledge search, usage accounting)
// enabling rapid construction of agentic chat backends. Most applications
// interact with this package by:
//  1. Creating a ConvoFlow via New() with a model client (optionally
//     overriding the default in-memory services)
//  2. Registering agents and workflow tools through the Store
//  3. Running chat turns asynchronously (Chat) or synchronously (ChatSync)
//
// The façade delegates the state machine to orchestrator.Orchestrator while
// keeping setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// store implementation and a structured logger.
package convoflow

import (
	"context"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/knowledge"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/orchestrator"
	"github.com/convoflow/convoflow/routing"
	"github.com/convoflow/convoflow/store"
	"github.com/convoflow/convoflow/tool"
	"github.com/convoflow/convoflow/usage"
	"github.com/convoflow/convoflow/workflow"
)

// Options configures the ConvoFlow instance.
type Options struct {
	// Store holds conversations, messages, agents, workflows and usage.
	// Defaults to the in-memory implementation.
	Store core.Store

	// Registry resolves workflow tool ids; defaults to a store-backed one.
	Registry tool.Registry

	// Runner executes workflow tools. Optional; without it workflow tool
	// calls fail with an error result.
	Runner workflow.Runner

	// Embedder and Searcher back the built-in search_knowledge tool.
	Embedder knowledge.Embedder
	Searcher knowledge.Searcher

	// EnableRouting turns on @mention parsing and first-message model
	// routing using the default router.
	EnableRouting bool

	// RecordUsage persists usage telemetry through the Store.
	RecordUsage bool

	// MaxToolIterations overrides the per-run model-call cap.
	MaxToolIterations int

	// DefaultSystemPrompt overrides the agentless fallback prompt.
	DefaultSystemPrompt string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ConvoFlow is the high-level façade aggregating the orchestrator and its
// services.
type ConvoFlow struct {
	opts  Options
	store core.Store
	orc   *orchestrator.Orchestrator
}

// New creates a ConvoFlow over a model client with optional overrides. Any
// unset service is initialized with an in-memory implementation.
func New(client model.Client, optFns ...func(o *Options)) *ConvoFlow {
	opts := Options{
		Store:             store.NewMemoryStore(),
		MaxToolIterations: orchestrator.MaxToolIterations,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	orc := orchestrator.New(opts.Store, client, func(o *orchestrator.Options) {
		if opts.Registry != nil {
			o.Registry = opts.Registry
		}
		o.Runner = opts.Runner
		o.Embedder = opts.Embedder
		o.Searcher = opts.Searcher
		o.Logger = opts.Logger
		o.MaxToolIterations = opts.MaxToolIterations
		if opts.DefaultSystemPrompt != "" {
			o.DefaultSystemPrompt = opts.DefaultSystemPrompt
		}
		if opts.EnableRouting {
			o.Router = routing.NewModelRouter(opts.Store, client)
		}
		if opts.RecordUsage {
			o.Recorder = usage.NewStoreRecorder(opts.Store)
		}
	})

	return &ConvoFlow{opts: opts, store: opts.Store, orc: orc}
}

// Store exposes the backing store for registering agents, workflows and
// conversations.
func (c *ConvoFlow) Store() core.Store { return c.store }

// NewConversation creates a conversation owned by the given user.
func (c *ConvoFlow) NewConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	return c.store.CreateConversation(ctx, conv)
}

// Chat starts an asynchronous run returning the chunk stream.
func (c *ConvoFlow) Chat(ctx context.Context, req orchestrator.ChatRequest) <-chan core.ChatStreamChunk {
	if req.Agent == nil && req.Conversation != nil && req.Conversation.AgentID != "" {
		if agent, err := c.store.GetAgent(ctx, req.Conversation.AgentID); err == nil {
			req.Agent = agent
		}
	}
	if c.opts.EnableRouting {
		req.EnableRouting = true
	}
	return c.orc.Chat(ctx, req)
}

// ChatSync is a synchronous helper that drains the chunk stream, returning
// all chunks plus the terminal chunk for convenience.
func (c *ConvoFlow) ChatSync(ctx context.Context, req orchestrator.ChatRequest) ([]core.ChatStreamChunk, *core.ChatStreamChunk, error) {
	var chunks []core.ChatStreamChunk
	var terminal *core.ChatStreamChunk
	for chunk := range c.Chat(ctx, req) {
		chunk := chunk
		chunks = append(chunks, chunk)
		if chunk.Terminal() {
			terminal = &chunk
		}
	}
	if err := ctx.Err(); err != nil {
		return chunks, terminal, err
	}
	return chunks, terminal, nil
}
