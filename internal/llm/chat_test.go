package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/tellmenow/internal/metrics"
)

// scriptedLLM replays responses in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	steps    []func() (*llms.ContentResponse, error)
	requests [][]llms.MessageContent
}

func (s *scriptedLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, append([]llms.MessageContent(nil), messages...))
	i := len(s.requests) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func (s *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func text(s string) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content:        s,
			GenerationInfo: map[string]any{"InputTokens": 3, "OutputTokens": 7},
		}}}, nil
	}
}

func fail(msg string) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) { return nil, errors.New(msg) }
}

func toolCalls(content string, calls ...llms.ToolCall) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content, ToolCalls: calls}}}, nil
	}
}

func call(id, name, args string) llms.ToolCall {
	return llms.ToolCall{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}
}

func newTestModel(fake llms.Model) (*Model, *metrics.Collector) {
	mc := metrics.NewCollector()
	m := New(fake, "test-model", mc)
	m.initialBackoff = time.Millisecond
	return m, mc
}

func TestChatSuccess(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){text("hello")}}
	m, mc := newTestModel(fake)

	got, err := m.Chat(context.Background(), "sys", "user", ChatOptions{MaxTokens: 10, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "test-model", m.Model())

	require.Len(t, fake.requests, 1)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.requests[0][0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.requests[0][1].Role)

	snap := mc.Snapshot()
	require.NotNil(t, snap.LLMChat)
	assert.Equal(t, int64(7), *snap.LLMChat.TotalOutputTokens)
}

func TestChatRetriesTransientErrors(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){
		fail("connection reset"), fail("HTTP 529: overloaded"), text("third time"),
	}}
	m, mc := newTestModel(fake)

	got, err := m.Chat(context.Background(), "s", "u", ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "third time", got)
	assert.Equal(t, 3, fake.calls())
	assert.Equal(t, int64(2), mc.Snapshot().Counters[metrics.CounterLLMRetry])
}

func TestChatGivesUpAfterThreeAttempts(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){fail("connection reset")}}
	m, _ := newTestModel(fake)

	_, err := m.Chat(context.Background(), "s", "u", ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, fake.calls())
}

func TestChatDoesNotRetryFatalErrors(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){fail("invalid api key")}}
	m, _ := newTestModel(fake)

	_, err := m.Chat(context.Background(), "s", "u", ChatOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalAPI)
	assert.Equal(t, 1, fake.calls())
}

func TestChatDoesNotRetryRateLimits(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){
		fail("HTTP 429: Too Many Requests"), text("never reached"),
	}}
	m, mc := newTestModel(fake)

	_, err := m.Chat(context.Background(), "s", "u", ChatOptions{})
	assert.ErrorIs(t, err, ErrFatalAPI)
	assert.Equal(t, 1, fake.calls())
	assert.Zero(t, mc.Snapshot().Counters[metrics.CounterLLMRetry])
}

func TestChatEmptyChoices(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){
		func() (*llms.ContentResponse, error) { return &llms.ContentResponse{}, nil },
	}}
	m, _ := newTestModel(fake)

	_, err := m.Chat(context.Background(), "s", "u", ChatOptions{})
	assert.ErrorContains(t, err, "no response choices")
}

type echoTool struct {
	name  string
	runs  atomic.Int32
	delay time.Duration
}

func (e *echoTool) Name() string               { return e.name }
func (e *echoTool) Description() string        { return "echoes its arguments" }
func (e *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (e *echoTool) Run(_ context.Context, args string, progress func(string)) string {
	e.runs.Add(1)
	progress(e.name + " " + args)
	time.Sleep(e.delay)
	return e.name + ":" + args
}

func TestChatWithToolsRunsTurnConcurrently(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){
		toolCalls("looking", call("c1", "a", `{"x":1}`), call("c2", "b", `{"y":2}`)),
		text("final answer"),
	}}
	m, mc := newTestModel(fake)
	a := &echoTool{name: "a", delay: 20 * time.Millisecond}
	b := &echoTool{name: "b", delay: 20 * time.Millisecond}

	var mu sync.Mutex
	var progress []string
	got, err := m.ChatWithTools(context.Background(), "s", "u", ChatOptions{}, []Tool{a, b}, 25, func(msg string) {
		mu.Lock()
		progress = append(progress, msg)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "looking\n\nfinal answer", got)
	assert.ElementsMatch(t, []string{`a {"x":1}`, `b {"y":2}`}, progress)

	require.Len(t, fake.requests, 2)
	second := fake.requests[1]
	require.Len(t, second, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, second[2].Role)

	toolMsg := second[3]
	assert.Equal(t, llms.ChatMessageTypeTool, toolMsg.Role)
	require.Len(t, toolMsg.Parts, 2, "all results go back in one message")
	first, ok := toolMsg.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "c1", first.ToolCallID)
	assert.Equal(t, `a:{"x":1}`, first.Content)

	assert.Equal(t, int64(2), mc.Snapshot().ToolCall.Count)
}

func TestChatWithToolsUnknownTool(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){
		toolCalls("", call("c1", "missing", "{}")),
		text("done"),
	}}
	m, _ := newTestModel(fake)

	got, err := m.ChatWithTools(context.Background(), "s", "u", ChatOptions{}, []Tool{&echoTool{name: "a"}}, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	resp := fake.requests[1][3].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, resp.Content, `unknown tool "missing"`)
}

func TestChatWithToolsTurnCeiling(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){
		toolCalls("partial", call("c", "a", "{}")),
	}}
	m, _ := newTestModel(fake)
	a := &echoTool{name: "a"}

	got, err := m.ChatWithTools(context.Background(), "s", "u", ChatOptions{}, []Tool{a}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "partial\n\npartial\n\npartial", got)
	assert.Equal(t, 3, fake.calls())
	assert.Equal(t, int32(3), a.runs.Load())
}

func TestChatWithToolsWithoutToolsFallsBackToChat(t *testing.T) {
	fake := &scriptedLLM{steps: []func() (*llms.ContentResponse, error){text("plain")}}
	m, _ := newTestModel(fake)

	got, err := m.ChatWithTools(context.Background(), "s", "u", ChatOptions{}, nil, 25, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}
