package errs

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"
)

// Scope runs a critical operation. It logs the start, and on every exit path
// logs completion or failure. A failure is recorded through h and returned
// unchanged; a panic is logged and re-raised.
func Scope(ctx context.Context, h *Handler, operation string, fields map[string]any, fn func(context.Context) error) (err error) {
	start := time.Now()
	logger := slog.Default()
	if h != nil && h.logger != nil {
		logger = h.logger
	}
	logger.Info("operation started", "operation", operation)

	defer func() {
		elapsed := time.Since(start)
		if r := recover(); r != nil {
			logger.Error("operation panicked", "operation", operation, "panic", r, "duration", elapsed)
			panic(r)
		}
		if err != nil {
			callCtx := map[string]any{"operation": operation, "duration_ms": elapsed.Milliseconds()}
			maps.Copy(callCtx, fields)
			if h != nil {
				h.Handle(err, callCtx)
			}
			logger.Warn("operation failed", "operation", operation, "duration", elapsed, "error", err)
			return
		}
		logger.Info("operation completed", "operation", operation, "duration", elapsed)
	}()

	return fn(ctx)
}

// SafeExecute runs fn and returns def if it fails or panics. The failure is
// recorded through h.
func SafeExecute[T any](h *Handler, def T, ctx map[string]any, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			if h != nil {
				h.Handle(panicError(r), ctx, SeverityCritical)
			}
			out = def
		}
	}()

	v, err := fn()
	if err != nil {
		if h != nil {
			h.Handle(err, ctx)
		}
		return def
	}
	return v
}

// Boundary converts a panic in fn into a critical *Error.
func Boundary(h *Handler, ctx map[string]any, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := panicError(r)
			if h != nil {
				h.Handle(pe, ctx)
			}
			err = pe
		}
	}()
	return fn()
}

func panicError(r any) *Error {
	var cause error
	if e, ok := r.(error); ok {
		cause = e
	}
	return New(CodePanic, fmt.Sprintf("panic: %v", r), CategoryUnknown, SeverityCritical, WithCause(cause))
}
