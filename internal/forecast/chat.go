package forecast

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/llm"
)

const maxChatMessage = 2000

const chatSystemPrompt = "You are an assistant for a bakery's sales and stock management. " +
	"Use the business figures provided when relevant. Be concise and suggest concrete actions."

// ChatReply is the answer to a free-form business question.
type ChatReply struct {
	Response    string         `json:"response"`
	Provider    string         `json:"provider"`
	Timestamp   time.Time      `json:"timestamp"`
	ContextUsed bool           `json:"context_used"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// businessContext summarizes recent sales for the chat prompt.
type businessContext struct {
	Source     string
	Records    int
	Products   int
	WeekUnits  int
	TopProduct string
}

func (s *Service) businessContext(ctx context.Context) businessContext {
	rows, source := s.SalesData(ctx)
	bc := businessContext{Source: source, Records: len(rows)}

	weekAgo := s.cfg.Now().AddDate(0, 0, -7)
	units := make(map[string]int)
	products := make(map[string]struct{})
	for _, r := range rows {
		products[r.Product] = struct{}{}
		if !r.Date.Before(weekAgo) {
			units[r.Product] += r.Quantity
			bc.WeekUnits += r.Quantity
		}
	}
	bc.Products = len(products)

	names := slices.Sorted(maps.Keys(units))
	for _, name := range names {
		if bc.TopProduct == "" || units[name] > units[bc.TopProduct] {
			bc.TopProduct = name
		}
	}
	return bc
}

func (bc businessContext) prompt() string {
	top := cmp.Or(domain.DisplayProductName(bc.TopProduct), "n/a")
	return fmt.Sprintf("Business figures (%s data):\n- Sales records: %d\n- Products sold: %d\n"+
		"- Units sold in the last 7 days: %d\n- Best seller this week: %s",
		bc.Source, bc.Records, bc.Products, bc.WeekUnits, top)
}

// Chat answers a business question through the provider chain, grounding it
// in recent sales. When no provider answers a keyword template is used.
func (s *Service) Chat(ctx context.Context, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errs.Validation("message must not be empty")
	}
	if len(message) > maxChatMessage {
		return nil, errs.Validation(fmt.Sprintf("message exceeds %d characters", maxChatMessage),
			errs.WithContext(map[string]any{"length": len(message)}))
	}

	bc := s.businessContext(ctx)
	reply := &ChatReply{Timestamp: s.cfg.Now(), ContextUsed: bc.Records > 0}

	if s.d.LLM != nil {
		opts := s.cfg.ChatOptions
		opts.SystemPrompt = chatSystemPrompt + "\n\n" + bc.prompt()
		resp := s.d.LLM.Generate(ctx, message, opts)
		if resp.OK {
			reply.Response = resp.Content
			reply.Provider = resp.Provider
			reply.Metadata = resp.Metadata
			return reply, nil
		}
		s.d.Errors.Handle(errs.AIAPI("no chat provider answered",
			errs.WithContext(map[string]any{"attempts": len(resp.Attempts())})), nil)
		reply.Metadata = map[string]any{"attempts": resp.Attempts()}
	}

	reply.Response = templateReply(message, bc)
	reply.Provider = "template"
	return reply, nil
}

// templateReply answers from keywords alone.
func templateReply(message string, bc businessContext) string {
	msg := strings.ToLower(message)
	has := func(words ...string) bool {
		return slices.ContainsFunc(words, func(w string) bool { return strings.Contains(msg, w) })
	}

	switch {
	case has("sale", "sold", "revenue"):
		return fmt.Sprintf("There are %d sales records on file, with %d units sold in the last 7 days. "+
			"Open the sales report for a detailed breakdown.", bc.Records, bc.WeekUnits)
	case has("stock", "product", "inventory"):
		if bc.TopProduct == "" {
			return fmt.Sprintf("%d products have recorded sales. No sales were recorded this week.", bc.Products)
		}
		return fmt.Sprintf("%d products have recorded sales. %s is this week's best seller, keep it well stocked.",
			bc.Products, domain.DisplayProductName(bc.TopProduct))
	case has("forecast", "demand", "predict"):
		return "Demand forecasts for every product are available from the prediction endpoints, " +
			"with insights generated per product."
	default:
		return "I can help with sales, stock and demand forecasts. " +
			"Ask about a product or about recent sales for specific figures."
	}
}
