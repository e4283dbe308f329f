package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/core/retry"
)

// ErrNotConfigured is returned by handlers without credentials.
var ErrNotConfigured = errors.New("provider not configured")

// OpenAIConfig configures the OpenAI handler.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Timeout time.Duration `yaml:"timeout"`
	Weight  int           `yaml:"weight"`
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.Model == "" {
		c.Model = openai.GPT3Dot5Turbo
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

func newOpenAIClient(c OpenAIConfig) *openai.Client {
	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: c.Timeout}
	return openai.NewClientWithConfig(cfg)
}

// NewOpenAIHandler returns a handler backed by the Chat Completions API. It
// retries empty answers, throttling and server errors with linearly growing
// waits.
func NewOpenAIHandler(cfg OpenAIConfig) Handler {
	cfg = cfg.withDefaults()
	client := newOpenAIClient(cfg)
	policy := retry.Policy{
		MaxAttempts: cfg.Retries,
		BaseDelay:   cfg.Backoff,
		MaxDelay:    10 * cfg.Backoff,
		Strategy:    retry.Linear,
	}

	return func(ctx context.Context, prompt string, opts Options) (*Response, error) {
		if cfg.APIKey == "" {
			return nil, ErrNotConfigured
		}

		model := opts.Model
		if model == "" {
			model = cfg.Model
		}
		var messages []openai.ChatCompletionMessage
		if opts.SystemPrompt != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: opts.SystemPrompt,
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		})

		req := openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   opts.MaxTokens,
			Temperature: float32(opts.Temperature),
		}
		if opts.JSONMode {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}

		tries := 0
		resp, err := retry.Do(ctx, policy, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			tries++
			resp, err := client.CreateChatCompletion(ctx, req)
			if err != nil {
				return resp, errs.AIAPI("openai request failed", errs.WithCause(err))
			}
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return resp, errs.AIAPI("openai returned empty content", errs.WithCause(errEmptyReply))
			}
			return resp, nil
		}, retry.WithName("openai"), retry.RetryIf(retryableReply))
		if err != nil {
			return nil, err
		}

		return &Response{
			OK:       true,
			Content:  strings.TrimSpace(resp.Choices[0].Message.Content),
			Provider: "openai",
			Metadata: map[string]any{
				"model":             resp.Model,
				"provider_attempts": tries,
				"input_tokens":      resp.Usage.PromptTokens,
				"output_tokens":     resp.Usage.CompletionTokens,
			},
		}, nil
	}
}

// NewOpenAIProbe returns a cheap reachability check that lists models.
func NewOpenAIProbe(cfg OpenAIConfig) func(ctx context.Context) error {
	cfg = cfg.withDefaults()
	client := newOpenAIClient(cfg)
	return func(ctx context.Context) error {
		if cfg.APIKey == "" {
			return ErrNotConfigured
		}
		_, err := client.ListModels(ctx)
		return err
	}
}
