// Package errs defines the error taxonomy used across the service and the
// handler that records, logs and renders those errors.
package errs

import (
	"errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"time"
)

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryDatabase       Category = "database"
	CategoryAIAPI          Category = "ai_api"
	CategoryFileSystem     Category = "file_system"
	CategoryValidation     Category = "validation"
	CategoryBusinessLogic  Category = "business_logic"
	CategoryAuthentication Category = "authentication"
	CategoryConfiguration  Category = "configuration"
	CategoryUnknown        Category = "unknown"
)

// Severity is the ordered impact level of an error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (low) to 3 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Error codes for the built-in constructors.
const (
	CodeNetwork       = "NETWORK_ERROR"
	CodeDatabase      = "DATABASE_ERROR"
	CodeAIAPI         = "AI_API_ERROR"
	CodeModelLoad     = "MODEL_LOAD_ERROR"
	CodeValidation    = "VALIDATION_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeUnknown       = "UNKNOWN_ERROR"
	CodePanic         = "PANIC"
)

// Error is a classified failure. It is immutable once constructed.
type Error struct {
	code        string
	message     string
	category    Category
	severity    Severity
	context     map[string]any
	cause       error
	userMessage string
	timestamp   time.Time
	stack       []uintptr
}

// Option customizes an Error at construction.
type Option func(*Error)

// WithCause attaches the underlying error.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

// WithContext attaches a copy of the given fields.
func WithContext(ctx map[string]any) Option {
	return func(e *Error) {
		if len(ctx) == 0 {
			return
		}
		if e.context == nil {
			e.context = make(map[string]any, len(ctx))
		}
		maps.Copy(e.context, ctx)
	}
}

// WithSeverity overrides the default severity.
func WithSeverity(s Severity) Option {
	return func(e *Error) {
		if s.Rank() >= 0 {
			e.severity = s
		}
	}
}

// WithUserMessage sets the text shown to end users.
func WithUserMessage(msg string) Option {
	return func(e *Error) { e.userMessage = msg }
}

// New builds an Error with an explicit code, category and severity.
func New(code, message string, category Category, severity Severity, opts ...Option) *Error {
	e := &Error{
		code:      code,
		message:   message,
		category:  category,
		severity:  severity,
		timestamp: time.Now(),
	}
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	e.stack = pcs[:n]
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Network builds a medium severity network error.
func Network(message string, opts ...Option) *Error {
	return New(CodeNetwork, message, CategoryNetwork, SeverityMedium, opts...)
}

// Database builds a high severity database error.
func Database(message string, opts ...Option) *Error {
	return New(CodeDatabase, message, CategoryDatabase, SeverityHigh, opts...)
}

// AIAPI builds a medium severity AI provider error.
func AIAPI(message string, opts ...Option) *Error {
	return New(CodeAIAPI, message, CategoryAIAPI, SeverityMedium, opts...)
}

// ModelLoad builds a high severity file system error for model artifacts.
func ModelLoad(message string, opts ...Option) *Error {
	return New(CodeModelLoad, message, CategoryFileSystem, SeverityHigh, opts...)
}

// Validation builds a low severity validation error.
func Validation(message string, opts ...Option) *Error {
	return New(CodeValidation, message, CategoryValidation, SeverityLow, opts...)
}

// Configuration builds a critical configuration error.
func Configuration(message string, opts ...Option) *Error {
	return New(CodeConfiguration, message, CategoryConfiguration, SeverityCritical, opts...)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() string         { return e.code }
func (e *Error) Message() string      { return e.message }
func (e *Error) Category() Category   { return e.category }
func (e *Error) Severity() Severity   { return e.severity }
func (e *Error) Cause() error         { return e.cause }
func (e *Error) Timestamp() time.Time { return e.timestamp }

// Context returns a copy of the attached fields.
func (e *Error) Context() map[string]any {
	if e.context == nil {
		return map[string]any{}
	}
	return maps.Clone(e.context)
}

// UserMessage returns the end-user text, falling back to the category default.
func (e *Error) UserMessage() string {
	if e.userMessage != "" {
		return e.userMessage
	}
	return userMessages.forCategory(e.category)
}

// StackTrace formats the frames captured at construction.
func (e *Error) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Map renders the error for logs and JSON payloads.
func (e *Error) Map() map[string]any {
	m := map[string]any{
		"code":      e.code,
		"message":   e.message,
		"category":  string(e.category),
		"severity":  string(e.severity),
		"timestamp": e.timestamp.Format(time.RFC3339),
		"context":   e.Context(),
	}
	if e.cause != nil {
		m["cause"] = e.cause.Error()
	}
	return m
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CategoryOf returns the category of err, classifying raw errors.
func CategoryOf(err error) Category {
	if e, ok := As(err); ok {
		return e.category
	}
	return Classify(err)
}
