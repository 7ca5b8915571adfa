package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/internal/testutil"
	"github.com/convoflow/convoflow/knowledge"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/routing"
	"github.com/convoflow/convoflow/store"
	"github.com/convoflow/convoflow/usage"
	"github.com/convoflow/convoflow/workflow"
)

type env struct {
	store  *store.MemoryStore
	client *model.ScriptedClient
	conv   *core.Conversation
}

func newEnv(t *testing.T, turns ...model.ScriptedTurn) *env {
	t.Helper()
	s := store.NewMemoryStore()
	conv, err := s.CreateConversation(context.Background(),
		testutil.NewConversationBuilder("u1").Identity("u1@example.com", "User One").Org("org1").Build())
	require.NoError(t, err)
	return &env{store: s, client: model.NewScriptedClient(turns...), conv: conv}
}

func collect(t *testing.T, ch <-chan core.ChatStreamChunk) []core.ChatStreamChunk {
	t.Helper()
	var chunks []core.ChatStreamChunk
	for c := range ch {
		require.NoError(t, c.Validate())
		chunks = append(chunks, c)
	}
	return chunks
}

func ofType(chunks []core.ChatStreamChunk, typ core.ChunkType) []core.ChatStreamChunk {
	var out []core.ChatStreamChunk
	for _, c := range chunks {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func countTerminals(chunks []core.ChatStreamChunk) int {
	n := 0
	for _, c := range chunks {
		if c.Type == core.ChunkDone || c.Type == core.ChunkError {
			n++
		}
	}
	return n
}

// fakeKnowledge implements both knowledge.Embedder and knowledge.Searcher
// with call counting so tests can assert the embedding client is not touched
// on validation failures.
type fakeKnowledge struct {
	embedCalls  int
	searchCalls int
	docs        []knowledge.Document
}

func (f *fakeKnowledge) EmbedSingle(context.Context, string) ([]float32, error) {
	f.embedCalls++
	return []float32{1, 0, 0}, nil
}

func (f *fakeKnowledge) Search(context.Context, []float32, []string, string, int, bool) ([]knowledge.Document, error) {
	f.searchCalls++
	return f.docs, nil
}

func TestChat_RoundTrip(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"Hel", "lo"}, InputTokens: 5, OutputTokens: 2})
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "Hi",
		Stream:       true,
	}))

	deltas := ofType(chunks, core.ChunkDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, "Hel", deltas[0].Content)
	assert.Equal(t, "lo", deltas[1].Content)

	require.Equal(t, 1, countTerminals(chunks))
	done := chunks[len(chunks)-1]
	assert.Equal(t, core.ChunkDone, done.Type)
	assert.Equal(t, "Hello", done.Content)
	assert.Equal(t, 5, done.InputTokens)
	assert.Equal(t, 2, done.OutputTokens)
	assert.NotEmpty(t, done.MessageID)

	msgs, err := e.store.ListMessages(context.Background(), e.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, 1, msgs[0].Sequence)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, 2, msgs[1].Sequence)
	assert.Equal(t, done.MessageID, msgs[1].ID)
}

func TestChat_WorkflowToolScenario(t *testing.T) {
	e := newEnv(t,
		model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "get_weather", Arguments: `{"city":"Berlin"}`}}, InputTokens: 10, OutputTokens: 3},
		model.ScriptedTurn{Deltas: []string{"It's sunny."}, InputTokens: 20, OutputTokens: 4},
	)
	ctx := context.Background()

	wf, err := e.store.CreateWorkflow(ctx, &core.Workflow{
		Name: "get_weather",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
		},
		IsTool: true,
		Active: true,
	})
	require.NoError(t, err)
	agent := testutil.NewAgentBuilder("Weather").ID("a1").Prompt("You report weather.").Tools(wf.ID).Build()

	var gotReq workflow.Request
	runner := workflow.RunnerFunc(func(_ context.Context, req workflow.Request) (*workflow.Result, error) {
		gotReq = req
		return &workflow.Result{Status: workflow.StatusSuccess, Result: map[string]any{"temp": 21}}, nil
	})

	orc := New(e.store, e.client, func(o *Options) { o.Runner = runner })
	chunks := collect(t, orc.Chat(ctx, ChatRequest{
		Agent:        agent,
		Conversation: e.conv,
		UserMessage:  "What's the weather in Berlin?",
		Stream:       true,
	}))

	assert.Equal(t, 2, e.client.StreamCalls)
	require.Len(t, ofType(chunks, core.ChunkToolProgress), 1)
	results := ofType(chunks, core.ChunkToolResult)
	require.Len(t, results, 1)
	assert.True(t, results[0].ToolResult.OK())

	done := chunks[len(chunks)-1]
	assert.Equal(t, core.ChunkDone, done.Type)
	assert.Equal(t, "It's sunny.", done.Content)
	assert.Equal(t, 30, done.InputTokens)
	assert.Equal(t, 7, done.OutputTokens)

	// Runner saw the workflow, the user identity and the execution id.
	assert.Equal(t, wf.ID, gotReq.WorkflowID)
	assert.Equal(t, "get_weather", gotReq.Name)
	assert.Equal(t, "Berlin", gotReq.Arguments["city"])
	assert.Equal(t, "u1", gotReq.UserID)
	assert.Equal(t, "org1", gotReq.OrgID)
	assert.NotEmpty(t, gotReq.ExecutionID)

	msgs, err := e.store.ListMessages(ctx, e.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Equal(t, "tc1", msgs[2].ToolCallID)
	assert.Equal(t, "get_weather", msgs[2].ToolName)
	assert.Equal(t, gotReq.ExecutionID, msgs[2].ExecutionID)
	assert.JSONEq(t, `{"temp":21}`, msgs[2].Content)
	assert.Equal(t, core.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "It's sunny.", msgs[3].Content)

	// The second model call saw the assistant tool-call turn and the tool
	// result in its transcript.
	require.Len(t, e.client.Requests, 2)
	second := e.client.Requests[1].Messages
	assert.Equal(t, core.RoleTool, second[len(second)-1].Role)
	assert.Equal(t, "tc1", second[len(second)-1].ToolCallID)
}

func TestChat_IterationCapIsSoft(t *testing.T) {
	turns := make([]model.ScriptedTurn, 12)
	for i := range turns {
		turns[i] = model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc", Name: "nonexistent_tool"}}}
	}
	e := newEnv(t, turns...)
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "loop forever",
	}))

	assert.Equal(t, MaxToolIterations, e.client.StreamCalls)
	assert.Equal(t, 1, countTerminals(chunks))
	assert.Equal(t, core.ChunkDone, chunks[len(chunks)-1].Type)
}

func TestChat_UnknownToolFailsClosed(t *testing.T) {
	e := newEnv(t,
		model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "nonexistent_tool"}}},
		model.ScriptedTurn{Deltas: []string{"done"}},
	)
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "try it",
	}))

	results := ofType(chunks, core.ChunkToolResult)
	require.Len(t, results, 1)
	assert.Equal(t, "Tool 'nonexistent_tool' not found", results[0].ToolResult.Error)
	assert.GreaterOrEqual(t, results[0].ToolResult.DurationMs, int64(0))
}

func TestChat_ModelErrorTerminates(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Err: errors.New("upstream unavailable")})
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "Hi",
	}))

	require.Equal(t, 1, countTerminals(chunks))
	last := chunks[len(chunks)-1]
	assert.Equal(t, core.ChunkError, last.Type)
	assert.Contains(t, last.Error, "upstream unavailable")

	// Only the user message was persisted, no assistant turn.
	msgs, err := e.store.ListMessages(context.Background(), e.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
}

func TestChat_StreamFalseSuppressesDeltas(t *testing.T) {
	e := newEnv(t,
		model.ScriptedTurn{Deltas: []string{"thinking"}, ToolCalls: []core.ToolCall{{ID: "tc1", Name: "nonexistent_tool"}}},
		model.ScriptedTurn{Deltas: []string{"final answer"}},
	)
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "quiet run",
		Stream:       false,
	}))

	assert.Empty(t, ofType(chunks, core.ChunkDelta))
	assert.Empty(t, ofType(chunks, core.ChunkToolCall))
	assert.Len(t, ofType(chunks, core.ChunkToolProgress), 1)
	assert.Len(t, ofType(chunks, core.ChunkToolResult), 1)
	assert.Equal(t, "final answer", chunks[len(chunks)-1].Content)
}

func TestChat_MentionSwitch(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"Here to help with billing."}})
	ctx := context.Background()

	billing, err := e.store.CreateAgent(ctx, &core.Agent{Name: "Billing", SystemPrompt: "You handle billing.", Active: true})
	require.NoError(t, err)

	orc := New(e.store, e.client, func(o *Options) {
		o.Router = routing.NewModelRouter(e.store, e.client)
	})
	chunks := collect(t, orc.Chat(ctx, ChatRequest{
		Conversation:  e.conv,
		UserMessage:   "@billing why was I charged twice?",
		EnableRouting: true,
	}))

	switches := ofType(chunks, core.ChunkAgentSwitch)
	require.Len(t, switches, 1)
	assert.Equal(t, chunks[0], switches[0])
	assert.Equal(t, billing.ID, switches[0].AgentSwitch.AgentID)
	assert.Equal(t, core.SwitchReasonMention, switches[0].AgentSwitch.Reason)

	conv, err := e.store.GetConversation(ctx, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.ID, conv.AgentID)

	// The persisted user message no longer carries the mention.
	msgs, err := e.store.ListMessages(ctx, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "why was I charged twice?", msgs[0].Content)

	// The switched agent's prompt drives the system message.
	require.NotEmpty(t, e.client.Requests)
	assert.Contains(t, e.client.Requests[0].Messages[0].Content, "You handle billing.")
}

func TestChat_CodingModeSwitchTerminates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	coder, err := e.store.CreateAgent(ctx, &core.Agent{Name: "Coder", IsCodingMode: true, Active: true})
	require.NoError(t, err)

	orc := New(e.store, e.client, func(o *Options) {
		o.Router = routing.NewModelRouter(e.store, e.client)
	})
	chunks := collect(t, orc.Chat(ctx, ChatRequest{
		Conversation:  e.conv,
		UserMessage:   "@coder fix the build",
		EnableRouting: true,
	}))

	require.Len(t, chunks, 2)
	assert.Equal(t, core.ChunkAgentSwitch, chunks[0].Type)
	assert.Equal(t, core.ChunkCodingModeRequired, chunks[1].Type)
	assert.Equal(t, coder.ID, chunks[1].AgentSwitch.AgentID)

	// Switch persisted before the coding-mode check, nothing else persisted.
	conv, err := e.store.GetConversation(ctx, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, coder.ID, conv.AgentID)
	msgs, err := e.store.ListMessages(ctx, e.conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, e.client.StreamCalls)
}

func TestChat_ModelRoutedFirstMessage(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"Invoice checked."}})
	ctx := context.Background()

	billing, err := e.store.CreateAgent(ctx, &core.Agent{Name: "Billing", Description: "Handles invoices.", Active: true})
	require.NoError(t, err)
	e.client.QueueCompletion("Billing")

	orc := New(e.store, e.client, func(o *Options) {
		o.Router = routing.NewModelRouter(e.store, e.client)
	})
	chunks := collect(t, orc.Chat(ctx, ChatRequest{
		Conversation:  e.conv,
		UserMessage:   "my invoice looks wrong",
		EnableRouting: true,
	}))

	switches := ofType(chunks, core.ChunkAgentSwitch)
	require.Len(t, switches, 1)
	assert.Equal(t, billing.ID, switches[0].AgentSwitch.AgentID)
	assert.Equal(t, core.SwitchReasonRouted, switches[0].AgentSwitch.Reason)
	assert.Equal(t, core.ChunkDone, chunks[len(chunks)-1].Type)
}

func TestChat_NoRoutingAfterFirstMessage(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"hello again"}})
	ctx := context.Background()

	_, err := e.store.CreateAgent(ctx, &core.Agent{Name: "Billing", Active: true})
	require.NoError(t, err)
	_, err = e.store.AppendMessage(ctx, core.AppendMessage{ConversationID: e.conv.ID, Role: core.RoleUser, Content: "earlier message"})
	require.NoError(t, err)

	orc := New(e.store, e.client, func(o *Options) {
		o.Router = routing.NewModelRouter(e.store, e.client)
	})
	chunks := collect(t, orc.Chat(ctx, ChatRequest{
		Conversation:  e.conv,
		UserMessage:   "second message, no mention",
		EnableRouting: true,
	}))

	assert.Empty(t, ofType(chunks, core.ChunkAgentSwitch))
	assert.Zero(t, e.client.CompleteCalls)
	assert.Equal(t, core.ChunkDone, chunks[len(chunks)-1].Type)
}

func TestChat_KnowledgeValidationSkipsEmbedding(t *testing.T) {
	fk := &fakeKnowledge{}
	tests := []struct {
		name    string
		agent   *core.Agent
		args    string
		wantErr string
	}{
		{
			name:    "empty query",
			agent:   testutil.NewAgentBuilder("Docs").ID("a1").Namespaces("docs").Build(),
			args:    `{"query":"  "}`,
			wantErr: "query",
		},
		{
			name:    "no namespaces",
			agent:   testutil.NewAgentBuilder("Docs").ID("a1").Build(),
			args:    `{"query":"weather"}`,
			wantErr: "knowledge sources",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t,
				model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "search_knowledge", Arguments: tt.args}}},
				model.ScriptedTurn{Deltas: []string{"done"}},
			)
			orc := New(e.store, e.client, func(o *Options) {
				o.Embedder = fk
				o.Searcher = fk
			})

			chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
				Agent:        tt.agent,
				Conversation: e.conv,
				UserMessage:  "look this up",
			}))

			results := ofType(chunks, core.ChunkToolResult)
			require.Len(t, results, 1)
			assert.Contains(t, results[0].ToolResult.Error, tt.wantErr)
			assert.Zero(t, fk.embedCalls)
			assert.Zero(t, fk.searchCalls)
		})
	}
}

func TestChat_KnowledgeSearchSuccess(t *testing.T) {
	fk := &fakeKnowledge{docs: []knowledge.Document{
		{Content: "rain tomorrow", Namespace: "docs", Score: 0.9123, Key: "d1"},
	}}
	e := newEnv(t,
		model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "search_knowledge", Arguments: `{"query":"forecast"}`}}},
		model.ScriptedTurn{Deltas: []string{"Rain is coming."}},
	)
	agent := testutil.NewAgentBuilder("Docs").ID("a1").Namespaces("docs").Build()
	orc := New(e.store, e.client, func(o *Options) {
		o.Embedder = fk
		o.Searcher = fk
	})

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Agent:        agent,
		Conversation: e.conv,
		UserMessage:  "what's the forecast?",
	}))

	results := ofType(chunks, core.ChunkToolResult)
	require.Len(t, results, 1)
	require.True(t, results[0].ToolResult.OK())
	payload, ok := results[0].ToolResult.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, payload["count"])
	assert.Equal(t, 1, fk.embedCalls)
	assert.Equal(t, 1, fk.searchCalls)

	// The persisted tool message carries the serialized documents.
	msgs, err := e.store.ListMessages(context.Background(), e.conv.ID)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[2].Content), &decoded))
	assert.EqualValues(t, 1, decoded["count"])
}

func TestChat_DelegationSuccess(t *testing.T) {
	e := newEnv(t,
		model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "delegate_to_research_assistant", Arguments: `{"task":"summarize the paper"}`}}},
		model.ScriptedTurn{Deltas: []string{"Summary attached."}},
	)
	ctx := context.Background()

	delegate, err := e.store.CreateAgent(ctx, &core.Agent{Name: "Research Assistant", SystemPrompt: "You research.", Active: true})
	require.NoError(t, err)
	agent := testutil.NewAgentBuilder("Lead").ID("a1").Delegates(delegate.ID).Build()
	e.client.QueueCompletion("The paper says rain.")

	orc := New(e.store, e.client)
	chunks := collect(t, orc.Chat(ctx, ChatRequest{
		Agent:        agent,
		Conversation: e.conv,
		UserMessage:  "delegate this",
	}))

	results := ofType(chunks, core.ChunkToolResult)
	require.Len(t, results, 1)
	require.True(t, results[0].ToolResult.OK())
	payload := results[0].ToolResult.Result.(map[string]any)
	assert.Equal(t, "The paper says rain.", payload["response"])
	assert.Equal(t, "Research Assistant", payload["agent"])
	assert.Equal(t, 1, e.client.CompleteCalls)
}

func TestChat_DelegationUnknownTarget(t *testing.T) {
	e := newEnv(t,
		model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "delegate_to_ghost", Arguments: `{"task":"haunt"}`}}},
		model.ScriptedTurn{Deltas: []string{"done"}},
	)
	agent := testutil.NewAgentBuilder("Lead").ID("a1").Build()

	orc := New(e.store, e.client)
	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Agent:        agent,
		Conversation: e.conv,
		UserMessage:  "delegate this",
	}))

	results := ofType(chunks, core.ChunkToolResult)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].ToolResult.Error, "ghost")
	assert.Zero(t, e.client.CompleteCalls)

	// No message was persisted on behalf of the delegate: user, assistant
	// tool-call turn, tool error, final assistant.
	msgs, err := e.store.ListMessages(context.Background(), e.conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChat_UsageRecorded(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"Hello"}, InputTokens: 8, OutputTokens: 3})
	orc := New(e.store, e.client, func(o *Options) {
		o.Recorder = usage.NewStoreRecorder(e.store)
	})

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "Hi",
	}))
	require.Equal(t, core.ChunkDone, chunks[len(chunks)-1].Type)

	recs, err := e.store.ListUsage(context.Background(), e.conv.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "scripted", recs[0].Provider)
	assert.Equal(t, "scripted-1", recs[0].Model)
	assert.Equal(t, 8, recs[0].InputTokens)
	assert.Equal(t, 3, recs[0].OutputTokens)
	assert.Equal(t, chunks[len(chunks)-1].MessageID, recs[0].MessageID)
	assert.Equal(t, "u1", recs[0].UserID)
}

func TestChat_EmptyFinalContentIsValid(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{})
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		Conversation: e.conv,
		UserMessage:  "say nothing",
	}))

	done := chunks[len(chunks)-1]
	assert.Equal(t, core.ChunkDone, done.Type)
	assert.Empty(t, done.Content)

	msgs, err := e.store.ListMessages(context.Background(), e.conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[1].Content)
}

func TestChat_ToolInstructionOnlyWithTools(t *testing.T) {
	ctx := context.Background()

	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"ok"}})
	orc := New(e.store, e.client)
	collect(t, orc.Chat(ctx, ChatRequest{Conversation: e.conv, UserMessage: "Hi"}))
	require.Len(t, e.client.Requests, 1)
	assert.NotContains(t, e.client.Requests[0].Messages[0].Content, "call the tool")

	e2 := newEnv(t, model.ScriptedTurn{Deltas: []string{"ok"}})
	wf, err := e2.store.CreateWorkflow(ctx, &core.Workflow{Name: "get_weather", IsTool: true, Active: true})
	require.NoError(t, err)
	agent := testutil.NewAgentBuilder("Weather").ID("a1").Prompt("Report weather.").Tools(wf.ID).Build()
	orc2 := New(e2.store, e2.client)
	collect(t, orc2.Chat(ctx, ChatRequest{Agent: agent, Conversation: e2.conv, UserMessage: "Hi"}))
	require.Len(t, e2.client.Requests, 1)
	sys := e2.client.Requests[0].Messages[0]
	assert.Equal(t, core.RoleSystem, sys.Role)
	assert.Contains(t, sys.Content, "Report weather.")
	assert.Contains(t, sys.Content, "call the tool")
	require.Len(t, e2.client.Requests[0].Tools, 1)
	assert.Equal(t, "get_weather", e2.client.Requests[0].Tools[0].Name)
}

func TestChat_NilConversationRecovers(t *testing.T) {
	e := newEnv(t, model.ScriptedTurn{Deltas: []string{"hi"}})
	orc := New(e.store, e.client)

	chunks := collect(t, orc.Chat(context.Background(), ChatRequest{
		UserMessage: "hello",
	}))

	require.Len(t, chunks, 1)
	assert.Equal(t, core.ChunkError, chunks[0].Type)
	assert.Contains(t, chunks[0].Error, "internal error")
}

func TestChat_ChatLoggerEmitsDomainRecords(t *testing.T) {
	e := newEnv(t,
		model.ScriptedTurn{ToolCalls: []core.ToolCall{{ID: "tc1", Name: "get_weather", Arguments: `{"city":"Berlin"}`}}},
		model.ScriptedTurn{Deltas: []string{"Sunny."}},
	)
	ctx := context.Background()

	wf, err := e.store.CreateWorkflow(ctx, &core.Workflow{Name: "get_weather", IsTool: true, Active: true})
	require.NoError(t, err)
	agent := testutil.NewAgentBuilder("Weather").ID("a1").Tools(wf.ID).Build()

	runner := workflow.RunnerFunc(func(context.Context, workflow.Request) (*workflow.Result, error) {
		return &workflow.Result{Status: workflow.StatusSuccess, Result: map[string]any{"temp": 21}}, nil
	})

	var buf bytes.Buffer
	orc := New(e.store, e.client, func(o *Options) {
		o.Runner = runner
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	})
	collect(t, orc.Chat(ctx, ChatRequest{
		Agent:        agent,
		Conversation: e.conv,
		UserMessage:  "weather?",
	}))

	out := buf.String()
	assert.Contains(t, out, "LLM call completed")
	assert.Contains(t, out, "Tool execution completed")
	assert.Contains(t, out, "Chat run completed")
	assert.Contains(t, out, `"component":"dispatch"`)
	assert.Contains(t, out, `"conversation_id":"`+e.conv.ID+`"`)
}
