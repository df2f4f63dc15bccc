package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/tellmenow/internal/metrics"
)

// Tool is a function the model may call during a tool-enabled chat.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]any
	// Run executes the call. Failures are reported in the returned text so
	// the model can react to them; progress receives sub-step messages.
	Run(ctx context.Context, arguments string, progress func(message string)) string
}

// ChatWithTools runs a bounded conversation in which the model may request
// tool calls. All calls of one turn run concurrently and their results are
// sent back together. The loop ends when the model stops calling tools or
// after maxTurns model turns, in which case the text gathered so far is
// returned.
func (m *Model) ChatWithTools(
	ctx context.Context,
	system, user string,
	opts ChatOptions,
	tools []Tool,
	maxTurns int,
	progress func(message string),
) (string, error) {
	if len(tools) == 0 {
		return m.Chat(ctx, system, user, opts)
	}
	if progress == nil {
		progress = func(string) {}
	}

	defs := make([]llms.Tool, 0, len(tools))
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
		byName[t.Name()] = t
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	callOpts := append(opts.callOptions(), llms.WithTools(defs))

	var texts []string
	for turn := 1; turn <= maxTurns; turn++ {
		choice, err := m.generate(ctx, messages, callOpts...)
		if err != nil {
			return "", err
		}
		texts = append(texts, choice.Content)

		if len(choice.ToolCalls) == 0 {
			return joinText(texts), nil
		}

		slog.Debug("model requested tools", "turn", turn, "calls", len(choice.ToolCalls))

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			assistant.Parts = append(assistant.Parts, llms.TextContent{Text: choice.Content})
		}
		for _, call := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, call)
		}
		messages = append(messages, assistant)

		results := m.runTools(ctx, choice.ToolCalls, byName, progress)
		reply := llms.MessageContent{Role: llms.ChatMessageTypeTool}
		for i, call := range choice.ToolCalls {
			reply.Parts = append(reply.Parts, llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       functionName(call),
				Content:    results[i],
			})
		}
		messages = append(messages, reply)
	}

	slog.Warn("tool turn ceiling reached", "max_turns", maxTurns)
	return joinText(texts), nil
}

// runTools executes one turn's calls concurrently, preserving call order in the results.
func (m *Model) runTools(ctx context.Context, calls []llms.ToolCall, byName map[string]Tool, progress func(string)) []string {
	results := make([]string, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()

			name := functionName(call)
			tool, ok := byName[name]
			if !ok {
				results[i] = fmt.Sprintf("Error: unknown tool %q", name)
				return
			}

			start := time.Now()
			results[i] = tool.Run(ctx, call.FunctionCall.Arguments, progress)
			m.metrics.RecordTiming(metrics.OpToolCall, time.Since(start))
		}()
	}
	wg.Wait()
	return results
}

func functionName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}
	return call.FunctionCall.Name
}
