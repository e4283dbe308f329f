package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/metrics"
)

const maxArgLen = 200

// Op is a retryable operation.
type Op[T any] func(ctx context.Context) (T, error)

// Option configures a single Do call.
type Option func(*options)

type options struct {
	name      string
	retryable func(error) bool
	handler   *errs.Handler
	onRetry   func(attempt int, err error, delay time.Duration)
	args      []any
	sleep     func(ctx context.Context, d time.Duration) error
}

// WithName labels the operation in logs, metrics and error context.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// RetryIf restricts retries to errors accepted by fn. Other errors are
// returned immediately.
func RetryIf(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.retryable = fn
		}
	}
}

// WithHandler routes every failed attempt through h.
func WithHandler(h *errs.Handler) Option {
	return func(o *options) { o.handler = h }
}

// OnRetry registers a callback invoked before each wait.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithArgs records the operation arguments in error context, truncated.
func WithArgs(args ...any) Option {
	return func(o *options) { o.args = args }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds or the policy's attempts are used up and
// returns the last error unchanged.
func Do[T any](ctx context.Context, p Policy, op Op[T], opts ...Option) (T, error) {
	return DoWithFallback(ctx, p, op, nil, opts...)
}

// DoWithFallback is Do with a fallback invoked once after the final failed
// attempt. If the fallback also fails the original error is returned.
func DoWithFallback[T any](ctx context.Context, p Policy, op Op[T], fallback Op[T], opts ...Option) (T, error) {
	p = p.WithDefaults()
	o := options{
		name:      "operation",
		retryable: Always,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			metrics.RetryAttemptsTotal.WithLabelValues(o.name, "success").Inc()
			return v, nil
		}
		lastErr = err

		if !o.retryable(err) {
			metrics.RetryAttemptsTotal.WithLabelValues(o.name, "fatal").Inc()
			return zero, err
		}
		metrics.RetryAttemptsTotal.WithLabelValues(o.name, "failure").Inc()

		if o.handler != nil {
			o.handler.Handle(err, o.attemptContext(attempt, p.MaxAttempts))
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if o.onRetry != nil {
			o.onRetry(attempt, err, delay)
		}
		slog.Debug("Retrying operation",
			"operation", o.name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	if fallback != nil {
		metrics.FallbackTotal.WithLabelValues(o.name).Inc()
		v, ferr := fallback(ctx)
		if ferr == nil {
			slog.Info("Fallback used", "operation", o.name, "error", lastErr)
			return v, nil
		}
		slog.Warn("Fallback failed", "operation", o.name, "error", ferr)
	}
	return zero, lastErr
}

// Wrap binds a policy to op for repeated use.
func Wrap[T any](p Policy, op Op[T], fallback Op[T], opts ...Option) Op[T] {
	return func(ctx context.Context) (T, error) {
		return DoWithFallback(ctx, p, op, fallback, opts...)
	}
}

func (o *options) attemptContext(attempt, maxAttempts int) map[string]any {
	ctx := map[string]any{
		"function":     o.name,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
	}
	if len(o.args) > 0 {
		ctx["args"] = truncate(fmt.Sprint(o.args...), maxArgLen)
	}
	return ctx
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
