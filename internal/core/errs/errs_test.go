package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify_KeywordOrder(t *testing.T) {
	tests := []struct {
		msg  string
		want Category
	}{
		{"Connection to MySQL refused", CategoryNetwork},
		{"network unreachable", CategoryNetwork},
		{"database is locked", CategoryDatabase},
		{"MySQL server has gone away", CategoryDatabase},
		{"OpenAI quota exceeded", CategoryAIAPI},
		{"bad api key", CategoryAIAPI},
		{"something odd", CategoryUnknown},
	}
	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestClassify_TypedBeforeKeywords(t *testing.T) {
	if got := Classify(fmt.Errorf("query api: %w", context.DeadlineExceeded)); got != CategoryNetwork {
		t.Errorf("deadline exceeded classified as %s", got)
	}
	wrapped := fmt.Errorf("outer: %w", Database("pool exhausted"))
	if got := Classify(wrapped); got != CategoryDatabase {
		t.Errorf("wrapped typed error classified as %s", got)
	}
}

func TestFromError(t *testing.T) {
	raw := errors.New("Connection to MySQL refused")
	e := FromError(raw, map[string]any{"op": "fetch"})
	if e.Category() != CategoryNetwork || e.Severity() != SeverityMedium {
		t.Fatalf("got %s/%s", e.Category(), e.Severity())
	}
	if e.Code() != CodeNetwork {
		t.Errorf("code = %s", e.Code())
	}
	if !errors.Is(e, raw) {
		t.Error("cause chain lost")
	}
	if e.Context()["op"] != "fetch" {
		t.Error("context not attached")
	}

	e = FromError(errors.New("weird"), nil, SeverityCritical)
	if e.Severity() != SeverityCritical {
		t.Errorf("override ignored: %s", e.Severity())
	}

	typed := Validation("bad horizon")
	if FromError(typed, nil, SeverityCritical) != typed {
		t.Error("typed error should pass through unchanged")
	}
}

func TestConstructorDefaults(t *testing.T) {
	tests := []struct {
		err  *Error
		cat  Category
		sev  Severity
		code int
	}{
		{Network("x"), CategoryNetwork, SeverityMedium, http.StatusInternalServerError},
		{Database("x"), CategoryDatabase, SeverityHigh, http.StatusInternalServerError},
		{AIAPI("x"), CategoryAIAPI, SeverityMedium, http.StatusInternalServerError},
		{ModelLoad("x"), CategoryFileSystem, SeverityHigh, http.StatusInternalServerError},
		{Validation("x"), CategoryValidation, SeverityLow, http.StatusBadRequest},
		{Configuration("x"), CategoryConfiguration, SeverityCritical, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if tt.err.Category() != tt.cat || tt.err.Severity() != tt.sev {
			t.Errorf("%s: got %s/%s", tt.err.Code(), tt.err.Category(), tt.err.Severity())
		}
		if got := HTTPStatus(tt.err); got != tt.code {
			t.Errorf("%s: status %d, want %d", tt.err.Code(), got, tt.code)
		}
	}
}

func TestContextIsCopied(t *testing.T) {
	ctx := map[string]any{"k": 1}
	e := Network("x", WithContext(ctx))
	ctx["k"] = 2
	got := e.Context()
	got["k"] = 3
	if e.Context()["k"] != 1 {
		t.Error("error context mutated from outside")
	}
}

func TestFormatForUser(t *testing.T) {
	if msg := FormatForUser(Validation("x")); msg != userMessages[CategoryValidation] {
		t.Errorf("got %q", msg)
	}
	if msg := FormatForUser(errors.New("??")); msg == "" {
		t.Error("expected default message")
	}
	custom := Network("x", WithUserMessage("custom"))
	if FormatForUser(custom) != "custom" {
		t.Error("custom user message ignored")
	}
}

func TestBoundary(t *testing.T) {
	h := NewHandler()
	err := Boundary(h, nil, func() error { panic("boom") })
	e, ok := As(err)
	if !ok || e.Severity() != SeverityCritical || e.Code() != CodePanic {
		t.Fatalf("got %v", err)
	}
	if h.Stats().TotalErrors != 1 {
		t.Error("panic not recorded")
	}
}

func TestSafeExecute(t *testing.T) {
	h := NewHandler()
	got := SafeExecute(h, 7, nil, func() (int, error) { return 0, errors.New("network down") })
	if got != 7 {
		t.Errorf("got %d", got)
	}
	got = SafeExecute(h, 7, nil, func() (int, error) { return 3, nil })
	if got != 3 {
		t.Errorf("got %d", got)
	}
}

func TestScope_ForwardsError(t *testing.T) {
	h := NewHandler()
	want := errors.New("database gone")
	err := Scope(context.Background(), h, "load", map[string]any{"product": "Croissant"}, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("got %v", err)
	}
	stats := h.Stats()
	if stats.TotalErrors != 1 || stats.ByCategory[CategoryDatabase] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestScope_RepanicsAfterLogging(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
	}()
	_ = Scope(context.Background(), nil, "op", nil, func(context.Context) error { panic("x") })
}
