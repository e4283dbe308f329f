package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/llm"
)

const insightSystemPrompt = "You are a concise retail demand analyst for a bakery. " +
	"Answer with practical, specific advice."

const defaultInsightHorizon = 7

var confidencePattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// BuildPrompt renders the advisor prompt for a product forecast.
func BuildPrompt(product string, predictions []float64) string {
	parts := make([]string, len(predictions))
	for i, v := range predictions {
		parts[i] = strconv.FormatFloat(v, 'f', 1, 64)
	}
	avg := domain.Mean(predictions)

	trend := "stable"
	if n := len(predictions); n >= 2 {
		switch delta := predictions[n-1] - predictions[0]; {
		case delta > avg*0.1:
			trend = "rising"
		case delta < -avg*0.1:
			trend = "falling"
		}
	}

	return fmt.Sprintf(
		"Product: %s\nDemand forecast for the next %d days: [%s]\nAverage: %.1f units/day (%s, trend %s).\n"+
			"Reply in JSON with keys \"insight\" (at most two sentences), \"action\" (one concrete action) "+
			"and \"confidence\" (0-100%%).",
		domain.DisplayProductName(product), len(predictions), strings.Join(parts, ", "),
		avg, domain.ClassifyDemand(avg), trend,
	)
}

// Insight produces advice for a product forecast. When predictions is empty
// a seven day forecast is computed first. Provider answers are cached by
// prompt; when every provider fails an offline template insight is returned
// with the attempt trace.
func (s *Service) Insight(ctx context.Context, product string, predictions []float64) (*domain.Insight, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, errs.Validation("product name is required")
	}
	if len(predictions) == 0 {
		res, err := s.Predict(ctx, product, defaultInsightHorizon)
		if err != nil {
			return nil, err
		}
		predictions = res.Values()
	}

	prompt := BuildPrompt(product, predictions)
	if text, ok := s.d.Insights.Cached(prompt); ok {
		in := parseInsight(text)
		in.Product = product
		in.Provider = "cache"
		in.Cached = true
		return &in, nil
	}

	var resp *llm.Response
	if s.d.LLM != nil {
		resp = s.d.LLM.Generate(ctx, prompt, s.cfg.InsightOptions)
	} else {
		resp = &llm.Response{Provider: "none", Content: llm.NoResponseContent, Metadata: map[string]any{"attempts": []llm.Attempt{}}}
	}

	if resp.OK {
		if err := s.d.Insights.Save(prompt, resp.Content); err != nil {
			slog.Warn("Failed to cache insight", "product", product, "error", err)
		}
		in := parseInsight(resp.Content)
		in.Product = product
		in.Provider = resp.Provider
		in.Metadata = resp.Metadata
		return &in, nil
	}

	s.d.Errors.Handle(errs.AIAPI("no insight provider answered",
		errs.WithContext(map[string]any{"product": product, "attempts": len(resp.Attempts())})), nil)

	in := s.d.Insights.Generate(product, predictions)
	in.Metadata["attempts"] = resp.Attempts()
	return &in, nil
}

type insightReply struct {
	Insight    string `json:"insight"`
	Action     string `json:"action"`
	Confidence any    `json:"confidence"`
}

// parseInsight reads a JSON reply, or falls back to line-based parsing.
func parseInsight(text string) domain.Insight {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var r insightReply
	if err := json.Unmarshal([]byte(body), &r); err == nil && r.Insight != "" {
		return domain.Insight{
			Text:       r.Insight,
			Action:     r.Action,
			Confidence: confidenceOf(r.Confidence),
		}
	}

	var in domain.Insight
	var rest []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "action:"):
			in.Action = strings.TrimSpace(line[len("action:"):])
		case strings.HasPrefix(lower, "confidence:"):
			// handled by the pattern below
		default:
			rest = append(rest, line)
		}
	}
	in.Text = strings.Join(rest, "\n")
	if in.Text == "" {
		in.Text = strings.TrimSpace(text)
	}
	if in.Action == "" && len(rest) > 1 {
		in.Text = rest[0]
		in.Action = strings.Join(rest[1:], " ")
	}
	if m := confidencePattern.FindStringSubmatch(text); m != nil {
		in.Confidence = clampConfidence(atoi(m[1]))
	}
	return in
}

func confidenceOf(v any) int {
	switch c := v.(type) {
	case float64:
		if c > 0 && c <= 1 {
			c *= 100
		}
		return clampConfidence(int(c))
	case string:
		if m := confidencePattern.FindStringSubmatch(c); m != nil {
			return clampConfidence(atoi(m[1]))
		}
		return clampConfidence(atoi(strings.TrimSpace(c)))
	default:
		return 0
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func clampConfidence(n int) int {
	return max(0, min(100, n))
}
