package errs

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/vietddude/demandcast/internal/metrics"
)

// LevelCritical sits above slog.LevelError for critical severity errors.
const LevelCritical = slog.LevelError + 4

const defaultMaxRecent = 100

// Entry is a summary of one handled error kept in the recent list.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity"`
	Context   map[string]any `json:"context,omitempty"`
}

// Stats is a snapshot of the handler counters.
type Stats struct {
	Timestamp   time.Time        `json:"timestamp"`
	TotalErrors int              `json:"total_errors"`
	ByCategory  map[Category]int `json:"errors_by_category"`
	BySeverity  map[Severity]int `json:"errors_by_severity"`
	LastErrors  []Entry          `json:"last_errors"`
}

// Handler classifies, logs and counts errors. It is safe for concurrent use.
type Handler struct {
	mu         sync.Mutex
	logger     *slog.Logger
	debug      bool
	maxRecent  int
	total      int
	byCategory map[Category]int
	bySeverity map[Severity]int
	recent     []Entry
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger used for handled errors.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithDebug enables technical details in rendered responses.
func WithDebug(debug bool) HandlerOption {
	return func(h *Handler) { h.debug = debug }
}

// WithMaxRecent caps the recent error list.
func WithMaxRecent(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxRecent = n
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		logger:     slog.Default(),
		maxRecent:  defaultMaxRecent,
		byCategory: make(map[Category]int),
		bySeverity: make(map[Severity]int),
		recent:     make([]Entry, 0, defaultMaxRecent),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Debug reports whether technical details are exposed.
func (h *Handler) Debug() bool { return h.debug }

// Handle classifies err, records it and logs it at a level matching its
// severity. It returns nil for a nil error and never panics.
func (h *Handler) Handle(err error, ctx map[string]any, severity ...Severity) *Error {
	if err == nil {
		return nil
	}
	e := FromError(err, ctx, severity...)

	h.record(e, ctx)
	metrics.ErrorsTotal.WithLabelValues(string(e.category), string(e.severity)).Inc()
	h.log(e, ctx)
	return e
}

// record keeps e in the recent list together with the caller's context.
func (h *Handler) record(e *Error, callCtx map[string]any) {
	var entryCtx map[string]any
	if len(e.context) > 0 || len(callCtx) > 0 {
		entryCtx = e.Context()
		for k, v := range callCtx {
			if _, ok := entryCtx[k]; !ok {
				entryCtx[k] = v
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.total++
	h.byCategory[e.category]++
	h.bySeverity[e.severity]++

	entry := Entry{
		Timestamp: e.timestamp,
		Code:      e.code,
		Message:   e.message,
		Category:  e.category,
		Severity:  e.severity,
		Context:   entryCtx,
	}
	if len(h.recent) >= h.maxRecent {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:len(h.recent)-1]
	}
	h.recent = append(h.recent, entry)
}

func (h *Handler) log(e *Error, callCtx map[string]any) {
	defer func() { _ = recover() }()

	logger := h.logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"code", e.code,
		"category", e.category,
		"severity", e.severity,
	}
	if len(e.context) > 0 {
		attrs = append(attrs, "context", e.Context())
	}
	if len(callCtx) > 0 && !sameContext(e.context, callCtx) {
		attrs = append(attrs, "call_context", callCtx)
	}
	if e.cause != nil {
		attrs = append(attrs, "cause", e.cause.Error())
	}

	level := slog.LevelWarn
	switch e.severity {
	case SeverityLow:
		level = slog.LevelInfo
	case SeverityHigh:
		level = slog.LevelError
	case SeverityCritical:
		level = LevelCritical
	}
	logger.Log(context.Background(), level, e.message, attrs...)
}

func sameContext(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

// Stats returns a copy of the counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Stats{
		Timestamp:   time.Now(),
		TotalErrors: h.total,
		ByCategory:  maps.Clone(h.byCategory),
		BySeverity:  maps.Clone(h.bySeverity),
		LastErrors:  append([]Entry(nil), h.recent...),
	}
}

// Clear resets all counters.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total = 0
	h.byCategory = make(map[Category]int)
	h.bySeverity = make(map[Severity]int)
	h.recent = h.recent[:0]
}
