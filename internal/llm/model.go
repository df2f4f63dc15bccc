// Package llm provides the chat model used by the pipelines, built on langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/tellmenow/internal/config"
	"github.com/raphaelgruber/tellmenow/internal/metrics"
)

// Retry policy for a single chat call.
const (
	maxAttempts    = 3
	initialBackoff = time.Second
	maxBackoff     = 10 * time.Second
)

// ChatOptions bounds a single model call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

func (o ChatOptions) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if o.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(o.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(o.Temperature))
	return opts
}

// Model wraps a langchaingo LLM with retry and timing.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector

	initialBackoff time.Duration
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return New(model, cfg.LLMModel, mc), nil
}

// New wraps an existing langchaingo model.
func New(model llms.Model, modelName string, mc *metrics.Collector) *Model {
	return &Model{
		llm:            model,
		modelName:      modelName,
		metrics:        mc,
		initialBackoff: initialBackoff,
	}
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Chat sends one system prompt and one user message and returns the text reply.
func (m *Model) Chat(ctx context.Context, system, user string, opts ChatOptions) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	choice, err := m.generate(ctx, messages, opts.callOptions()...)
	if err != nil {
		return "", err
	}
	return choice.Content, nil
}

// generate calls the model with up to three attempts and exponential
// backoff. Fatal provider errors are returned immediately.
func (m *Model) generate(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentChoice, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.initialBackoff
	policy.MaxInterval = maxBackoff
	policy.MaxElapsedTime = 0

	var choice *llms.ContentChoice
	attempt := 0
	operation := func() error {
		attempt++
		start := time.Now()
		resp, err := m.llm.GenerateContent(ctx, messages, opts...)
		duration := time.Since(start)
		if err != nil {
			err = wrapFatalError(err)
			if errors.Is(err, ErrFatalAPI) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no response choices")
		}

		choice = resp.Choices[0]
		in, out := tokenUsage(choice.GenerationInfo)
		m.metrics.RecordLLMUsage(metrics.OpLLMChat, duration, in, out)
		slog.Debug("llm call complete", "model", m.modelName, "attempt", attempt,
			"duration_ms", duration.Milliseconds(), "input_tokens", in, "output_tokens", out)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		m.metrics.Inc(metrics.CounterLLMRetry)
		slog.Warn("llm call failed, retrying", "model", m.modelName, "attempt", attempt,
			"wait_ms", wait.Milliseconds(), "error", err)
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx)
	if err := backoff.RetryNotify(operation, retry, notify); err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}
	return choice, nil
}

// tokenUsage reads token counts from provider-specific generation info keys.
func tokenUsage(info map[string]any) (int64, int64) {
	return firstInt(info, "InputTokens", "PromptTokens"), firstInt(info, "OutputTokens", "CompletionTokens")
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

// joinText concatenates non-empty text segments with blank lines.
func joinText(parts []string) string {
	var kept []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}
