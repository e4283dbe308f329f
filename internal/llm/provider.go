// Package llm runs prompts against an ordered list of text-generation
// providers and reports which one answered.
package llm

import (
	"context"
	"maps"
)

// Options are passed through to provider handlers unchanged.
type Options struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature"`
	Model        string  `json:"model,omitempty"`
	JSONMode     bool    `json:"json_mode,omitempty"`
}

// Response is the outcome of a generation request.
type Response struct {
	OK       bool           `json:"ok"`
	Content  string         `json:"content"`
	Provider string         `json:"provider"`
	Metadata map[string]any `json:"metadata"`
}

// Attempts returns the per-provider trace recorded by the orchestrator.
func (r *Response) Attempts() []Attempt {
	a, _ := r.Metadata["attempts"].([]Attempt)
	return a
}

// Attempt records one provider invocation.
type Attempt struct {
	Provider  string  `json:"provider"`
	Success   bool    `json:"success"`
	LatencyMs float64 `json:"latency_ms"`
	Code      string  `json:"code,omitempty"`
	Error     string  `json:"error,omitempty"` // debug only
}

// Handler produces a response for a prompt. A handler signals failure either
// by returning an error or a response with OK false.
type Handler func(ctx context.Context, prompt string, opts Options) (*Response, error)

// Provider is a named handler with a selection weight. Higher weight is tried
// first.
type Provider struct {
	name    string
	handler Handler
	weight  int
}

// NewProvider creates a Provider. Weight is clamped to at least 1.
func NewProvider(name string, handler Handler, weight int) *Provider {
	if weight < 1 {
		weight = 1
	}
	return &Provider{name: name, handler: handler, weight: weight}
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Weight() int  { return p.weight }

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	return maps.Clone(m)
}
