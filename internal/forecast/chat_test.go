package forecast

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/llm"
)

func weekOfSales() *seqSales {
	return &seqSales{batches: [][]domain.SaleRecord{{
		{Date: testNow.AddDate(0, 0, -20), Product: "bolo", Quantity: 90},
		{Date: testNow.AddDate(0, 0, -2), Product: "bolo", Quantity: 12},
		{Date: testNow.AddDate(0, 0, -1), Product: "pao_frances", Quantity: 30},
	}}}
}

func TestChat_UsesProviderWithBusinessContext(t *testing.T) {
	var system string
	orch := llm.NewOrchestrator(llm.NewProvider("primary", func(_ context.Context, _ string, opts llm.Options) (*llm.Response, error) {
		system = opts.SystemPrompt
		return &llm.Response{OK: true, Content: "Order more flour."}, nil
	}, 1))
	svc := newTestService(t, Deps{Sales: weekOfSales(), LLM: orch})

	reply, err := svc.Chat(context.Background(), "What should I restock?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Response != "Order more flour." || reply.Provider != "primary" || !reply.ContextUsed {
		t.Errorf("reply = %+v", reply)
	}
	for _, want := range []string{"Sales records: 3", "Units sold in the last 7 days: 42", "Best seller this week: pao frances"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system)
		}
	}
}

func TestChat_TemplateWhenProvidersFail(t *testing.T) {
	orch := llm.NewOrchestrator(llm.NewProvider("primary", func(context.Context, string, llm.Options) (*llm.Response, error) {
		return nil, errors.New("service unavailable")
	}, 1))
	svc := newTestService(t, Deps{Sales: weekOfSales(), LLM: orch})

	tests := []struct {
		message string
		want    string
	}{
		{"how many sales?", "3 sales records"},
		{"is my stock ok", "pao frances is this week's best seller"},
		{"show the demand forecast", "prediction endpoints"},
		{"hello", "I can help"},
	}
	for _, tt := range tests {
		reply, err := svc.Chat(context.Background(), tt.message)
		if err != nil {
			t.Fatalf("Chat(%q): %v", tt.message, err)
		}
		if reply.Provider != "template" || !strings.Contains(reply.Response, tt.want) {
			t.Errorf("Chat(%q) = %+v", tt.message, reply)
		}
		if attempts, _ := reply.Metadata["attempts"].([]llm.Attempt); len(attempts) != 1 {
			t.Errorf("attempts = %+v", reply.Metadata["attempts"])
		}
	}
	if svc.Errors().Stats().ByCategory[errs.CategoryAIAPI] != len(tests) {
		t.Error("chat failures not recorded")
	}
}

func TestChat_Validation(t *testing.T) {
	svc := newTestService(t, Deps{})
	for _, msg := range []string{"", "  ", strings.Repeat("x", maxChatMessage+1)} {
		_, err := svc.Chat(context.Background(), msg)
		if e, ok := errs.As(err); !ok || e.Category() != errs.CategoryValidation {
			t.Errorf("Chat(%d chars) err = %v", len(msg), err)
		}
	}
}
