package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T, level LogLevel) (*ChatLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf, CustomAttrs: map[string]interface{}{}})
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("info"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestChatLogger_ContextualAttrs(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelInfo)

	l.WithComponent("orchestrator").
		WithConversation("conv-1", "exec-1").
		WithContext("org_id", "org-9").
		Info("ready")

	out := buf.String()
	assert.Contains(t, out, `"component":"orchestrator"`)
	assert.Contains(t, out, `"conversation_id":"conv-1"`)
	assert.Contains(t, out, `"execution_id":"exec-1"`)
	assert.Contains(t, out, `"org_id":"org-9"`)
}

func TestChatLogger_WithClonesDoNotLeak(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelInfo)

	l.WithConversation("conv-1", "").Info("first")
	l.Info("second")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.NotContains(t, string(lines[1]), "conv-1")
}

func TestChatLogger_LogToolCall(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelInfo)

	l.LogToolCall("get_weather", 12*time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "Tool execution completed")
	assert.Contains(t, buf.String(), `"tool_name":"get_weather"`)

	buf.Reset()
	l.LogToolCall("get_weather", time.Millisecond, false, errors.New("boom"))
	assert.Contains(t, buf.String(), "Tool execution failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestChatLogger_LogLLMCall(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelInfo)

	l.LogLLMCall("gpt-4o-mini", 42, 30*time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "LLM call completed")
	assert.Contains(t, buf.String(), `"token_count":42`)
}

func TestChatLogger_LogChatRun(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelInfo)

	l.LogChatRun("Billing", 2, 80*time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "Chat run completed")
	assert.Contains(t, buf.String(), `"agent":"Billing"`)
	assert.Contains(t, buf.String(), `"iteration_count":2`)
}

func TestChatLogger_ErrorWithStack(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelError)

	l.ErrorWithStack(errors.New("persist failed"), "chat run failed")
	assert.Contains(t, buf.String(), "chat run failed")
	assert.Contains(t, buf.String(), `"error":"persist failed"`)
	assert.Contains(t, buf.String(), "stack_trace")
}

func TestChatLogger_StartTimerAndPerformance(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelInfo)

	stop := l.StartTimer("toolset_build")
	stop()
	assert.Contains(t, buf.String(), "Operation completed")

	buf.Reset()
	l.LogPerformance("knowledge_search", 5*time.Millisecond, map[string]interface{}{"documents": 3})
	assert.Contains(t, buf.String(), "Performance metrics")
	assert.Contains(t, buf.String(), `"metric_documents":3`)
}

func TestChatLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferedLogger(t, LogLevelWarn)

	l.Info("suppressed")
	assert.Empty(t, buf.String())

	l.Warn("emitted")
	assert.Contains(t, buf.String(), "emitted")
}
