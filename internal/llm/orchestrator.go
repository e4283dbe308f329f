package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/vietddude/demandcast/internal/metrics"
)

// NoResponseContent is returned when every provider failed.
const NoResponseContent = "no response available"

// Orchestrator tries providers in weight order until one succeeds.
type Orchestrator struct {
	providers []*Provider
	monitor   *Monitor
	logger    *slog.Logger
	debug     bool
}

// NewOrchestrator creates an Orchestrator. Providers are ordered by weight,
// highest first; equal weights keep their registration order.
func NewOrchestrator(providers ...*Provider) *Orchestrator {
	ordered := slices.Clone(providers)
	slices.SortStableFunc(ordered, func(a, b *Provider) int {
		return b.weight - a.weight
	})
	return &Orchestrator{
		providers: ordered,
		monitor:   NewMonitor(),
		logger:    slog.Default().With("component", "llm"),
	}
}

// WithDebug makes attempt traces and provider stats carry raw error text.
// Without it they only carry error codes.
func (o *Orchestrator) WithDebug(debug bool) *Orchestrator {
	o.debug = debug
	o.monitor.SetDebug(debug)
	return o
}

// Providers returns provider names in attempt order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.name
	}
	return names
}

// Monitor returns the per-provider statistics.
func (o *Orchestrator) Monitor() *Monitor { return o.monitor }

// Generate runs prompt against each provider in order and returns the first
// successful response. The response metadata always carries the attempt
// trace; latency_ms and attempts are only set when the provider did not set
// them. When every provider fails the response has OK false, provider "none"
// and the fixed NoResponseContent text.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, opts Options) *Response {
	attempts := make([]Attempt, 0, len(o.providers))
	var failures error

	for _, p := range o.providers {
		if ctx.Err() != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", p.name, ctx.Err()))
			break
		}

		start := time.Now()
		resp, err := o.invoke(ctx, p, prompt, opts)
		latency := time.Since(start)
		latencyMs := float64(latency.Microseconds()) / 1000

		if err == nil && resp != nil && resp.OK {
			attempts = append(attempts, Attempt{Provider: p.name, Success: true, LatencyMs: latencyMs})
			o.monitor.RecordSuccess(p.name, latency)
			metrics.ProviderAttemptsTotal.WithLabelValues(p.name, "success").Inc()
			metrics.ProviderLatency.WithLabelValues(p.name).Observe(latency.Seconds())

			out := &Response{
				OK:       true,
				Content:  resp.Content,
				Provider: resp.Provider,
				Metadata: cloneMetadata(resp.Metadata),
			}
			if out.Provider == "" {
				out.Provider = p.name
			}
			if _, ok := out.Metadata["latency_ms"]; !ok {
				out.Metadata["latency_ms"] = latencyMs
			}
			if _, ok := out.Metadata["attempts"]; !ok {
				out.Metadata["attempts"] = attempts
			}
			o.logger.Debug("Provider answered", "provider", p.name, "latency", latency, "attempt", len(attempts))
			return out
		}

		if err == nil {
			err = errors.New("provider returned no usable response")
		}
		attempt := Attempt{Provider: p.name, LatencyMs: latencyMs, Code: failureCode(err)}
		if o.debug {
			attempt.Error = err.Error()
		}
		attempts = append(attempts, attempt)
		failures = multierr.Append(failures, fmt.Errorf("%s: %w", p.name, err))
		o.monitor.RecordFailure(p.name, latency, err)
		metrics.ProviderAttemptsTotal.WithLabelValues(p.name, "failure").Inc()
		metrics.ProviderLatency.WithLabelValues(p.name).Observe(latency.Seconds())
		o.logger.Warn("Provider failed", "provider", p.name, "error", err)
	}

	if failures != nil {
		o.logger.Error("All providers failed", "providers", len(o.providers), "error", failures)
	}
	return &Response{
		OK:       false,
		Content:  NoResponseContent,
		Provider: "none",
		Metadata: map[string]any{"attempts": attempts},
	}
}

// invoke calls the handler, turning a panic into an error.
func (o *Orchestrator) invoke(ctx context.Context, p *Provider, prompt string, opts Options) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()
	resp, err = p.handler(ctx, prompt, opts)
	if err == nil && resp != nil && !resp.OK {
		err = failureFromResponse(resp)
	}
	return resp, err
}

func failureFromResponse(resp *Response) error {
	if msg, ok := resp.Metadata["error"].(string); ok && msg != "" {
		return errors.New(msg)
	}
	if resp.Content != "" {
		return errors.New(resp.Content)
	}
	return errors.New("provider reported failure")
}
