package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/core/retry"
)

const geminiAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// geminiKeyHeader carries the API key so it never appears in a URL.
const geminiKeyHeader = "x-goog-api-key"

var (
	errEmptyReply      = errors.New("empty reply")
	errTransientStatus = errors.New("transient status")
)

// retryableReply retries empty answers, throttling and server errors.
// Client errors such as a rejected key fail on the first attempt.
func retryableReply(err error) bool {
	return errors.Is(err, errEmptyReply) || errors.Is(err, errTransientStatus) || retry.IsRetryable(err)
}

// GeminiConfig configures the Gemini handler.
type GeminiConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Timeout time.Duration `yaml:"timeout"`
	Weight  int           `yaml:"weight"`
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.BaseURL == "" {
		c.BaseURL = geminiAPIBaseURL
	}
	if c.Model == "" {
		c.Model = "gemini-1.5-flash"
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

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (r *geminiResponse) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		break
	}
	return strings.TrimSpace(b.String())
}

// NewGeminiHandler returns a handler backed by the Gemini REST API. Empty
// answers, 429 and 5xx responses are retried; other client errors are not.
func NewGeminiHandler(cfg GeminiConfig) Handler {
	cfg = cfg.withDefaults()
	client := &http.Client{Timeout: cfg.Timeout}
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
		apiReq := geminiRequest{
			Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
			GenerationConfig: &geminiGenerationConfig{
				MaxOutputTokens: opts.MaxTokens,
				Temperature:     opts.Temperature,
			},
		}
		if opts.SystemPrompt != "" {
			apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemPrompt}}}
		}
		if opts.JSONMode {
			apiReq.GenerationConfig.ResponseMIMEType = "application/json"
		}
		body, err := json.Marshal(apiReq)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
		}
		url := fmt.Sprintf("%s/%s:generateContent", cfg.BaseURL, model)

		tries := 0
		text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
			tries++
			return geminiCall(ctx, client, url, cfg.APIKey, body)
		}, retry.WithName("gemini"), retry.RetryIf(retryableReply))
		if err != nil {
			return nil, err
		}

		return &Response{
			OK:       true,
			Content:  text,
			Provider: "gemini",
			Metadata: map[string]any{
				"model":             model,
				"provider_attempts": tries,
			},
		}, nil
	}
}

func geminiCall(ctx context.Context, client *http.Client, url, apiKey string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(geminiKeyHeader, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", errs.AIAPI("gemini request failed", errs.WithCause(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.AIAPI("failed to read gemini response", errs.WithCause(err))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errs.AIAPI(fmt.Sprintf("gemini returned undecodable body (status %d)", resp.StatusCode),
			errs.WithCause(err))
	}
	if resp.StatusCode >= 400 || parsed.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		opts := []errs.Option{errs.WithContext(map[string]any{"status": resp.StatusCode})}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			opts = append(opts, errs.WithCause(errTransientStatus))
		}
		return "", errs.AIAPI(fmt.Sprintf("gemini error %d: %s", resp.StatusCode, msg), opts...)
	}

	text := parsed.text()
	if text == "" {
		return "", errs.AIAPI("gemini returned empty text", errs.WithCause(errEmptyReply))
	}
	return text, nil
}

// NewGeminiProbe returns a reachability check that fetches model metadata.
func NewGeminiProbe(cfg GeminiConfig) func(ctx context.Context) error {
	cfg = cfg.withDefaults()
	client := &http.Client{Timeout: cfg.Timeout}
	return func(ctx context.Context) error {
		if cfg.APIKey == "" {
			return ErrNotConfigured
		}
		url := fmt.Sprintf("%s/%s", cfg.BaseURL, cfg.Model)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set(geminiKeyHeader, cfg.APIKey)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 400 {
			return fmt.Errorf("gemini probe: status %d", resp.StatusCode)
		}
		return nil
	}
}
