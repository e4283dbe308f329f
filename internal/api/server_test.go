package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/fallback"
	"github.com/vietddude/demandcast/internal/forecast"
	"github.com/vietddude/demandcast/internal/health"
)

func newTestServer(t *testing.T, cfg Config, debug bool) *Server {
	t.Helper()
	dir := t.TempDir()
	handler := errs.NewHandler(
		errs.WithDebug(debug),
		errs.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	svc := forecast.NewService(forecast.Deps{
		Database:   fallback.NewDatabaseFallback(dir),
		Prediction: fallback.NewPredictionFallback(dir),
		Insights:   fallback.NewInsightFallback(dir),
		Errors:     handler,
	}, forecast.DefaultConfig())

	checker := health.NewChecker()
	checker.Register("db", health.TypeDatabase, func(context.Context) (health.ComponentHealth, error) {
		return health.ComponentHealth{Status: health.StatusHealthy}, nil
	})
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = []string{"*"}
	}
	return New(cfg, svc, checker)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestPredict(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	rec := do(t, s, http.MethodPost, "/api/ai/predict", `{"product":"bolo","days_ahead":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}

	var body struct {
		Success    bool `json:"success"`
		Prediction struct {
			Predictions []json.RawMessage `json:"predictions"`
			Source      string            `json:"source"`
		} `json:"prediction"`
	}
	decode(t, rec, &body)
	if !body.Success || len(body.Prediction.Predictions) != 5 || body.Prediction.Source != "fallback" {
		t.Errorf("body = %+v", body)
	}
}

func TestPredict_DefaultHorizon(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	rec := do(t, s, http.MethodPost, "/api/ai/predict", `{"product":"cafe"}`)
	var body struct {
		Prediction struct {
			Horizon int `json:"days_ahead"`
		} `json:"prediction"`
	}
	decode(t, rec, &body)
	if body.Prediction.Horizon != defaultHorizon {
		t.Errorf("horizon = %d", body.Prediction.Horizon)
	}
}

func TestPredict_ValidationEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad horizon", `{"product":"bolo","days_ahead":0}`},
		{"no product", `{"days_ahead":3}`},
		{"bad json", `{"product":`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Config{}, false)
			req := httptest.NewRequest(http.MethodPost, "/api/ai/predict", strings.NewReader(tt.body))
			req.Header.Set(requestIDHeader, "req-123")
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", rec.Code)
			}
			var body errs.Body
			decode(t, rec, &body)
			if body.Success || body.Error.Category != errs.CategoryValidation || body.RequestID != "req-123" {
				t.Errorf("body = %+v", body)
			}
			if body.Error.TechnicalMessage != "" || body.Error.Traceback != "" {
				t.Error("technical details leaked outside debug mode")
			}
		})
	}
}

func TestErrorEnvelope_Debug(t *testing.T) {
	s := newTestServer(t, Config{}, true)
	rec := do(t, s, http.MethodPost, "/api/ai/predict", `{"product":"bolo","days_ahead":999}`)
	var body errs.Body
	decode(t, rec, &body)
	if body.Error.TechnicalMessage == "" || body.Error.Traceback == "" {
		t.Errorf("debug details missing: %+v", body.Error)
	}
	if body.Error.Context["days_ahead"] != float64(999) {
		t.Errorf("context = %v", body.Error.Context)
	}
}

func TestPredictAll(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	rec := do(t, s, http.MethodGet, "/api/ai/predict-all?days_ahead=2", "")
	var body struct {
		Count  int      `json:"count"`
		Failed []string `json:"failed"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Count == 0 || len(body.Failed) != 0 {
		t.Errorf("code = %d body = %+v", rec.Code, body)
	}

	rec = do(t, s, http.MethodGet, "/api/ai/predict-all?days_ahead=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad days code = %d", rec.Code)
	}
}

func TestProducts(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	rec := do(t, s, http.MethodGet, "/api/ai/products", "")
	var body struct {
		Products []string `json:"products"`
		Count    int      `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count == 0 || body.Count != len(body.Products) {
		t.Errorf("body = %+v", body)
	}
}

func TestInsight_OfflineAndRateLimited(t *testing.T) {
	s := newTestServer(t, Config{InsightsPerHour: 2}, false)
	payload := `{"product":"bolo","predictions":[40,42,45]}`

	for i := range 2 {
		rec := do(t, s, http.MethodPost, "/api/ai/generate-insight", payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d code = %d", i, rec.Code)
		}
		var body struct {
			Insight struct {
				Provider string `json:"provider"`
				Offline  bool   `json:"offline"`
			} `json:"insight"`
		}
		decode(t, rec, &body)
		if !body.Insight.Offline || body.Insight.Provider != "offline" {
			t.Errorf("insight = %+v", body.Insight)
		}
	}

	rec := do(t, s, http.MethodPost, "/api/ai/generate-insight", payload)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	var body errs.Body
	decode(t, rec, &body)
	if body.Error.Code != "RATE_LIMITED" {
		t.Errorf("body = %+v", body)
	}
}

func TestChat(t *testing.T) {
	s := newTestServer(t, Config{}, false)

	rec := do(t, s, http.MethodPost, "/api/ai/chat", `{"message":"How are sales this week?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Success bool `json:"success"`
		Chat    struct {
			Response    string `json:"response"`
			Provider    string `json:"provider"`
			ContextUsed bool   `json:"context_used"`
		} `json:"chat"`
	}
	decode(t, rec, &body)
	if !body.Success || body.Chat.Provider != "template" || !body.Chat.ContextUsed ||
		!strings.Contains(body.Chat.Response, "sales records") {
		t.Errorf("body = %+v", body)
	}

	rec = do(t, s, http.MethodPost, "/api/ai/chat", `{"message":"   "}`)
	var bad errs.Body
	decode(t, rec, &bad)
	if rec.Code != http.StatusBadRequest || bad.Error.Code != errs.CodeValidation {
		t.Errorf("code = %d body = %+v", rec.Code, bad)
	}
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t, Config{}, false)

	rec := do(t, s, http.MethodGet, "/api/ai/cache/info", "")
	if rec.Code != http.StatusOK {
		t.Errorf("info code = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/ai/cache/clear", `{"scope":"predictions"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("clear code = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/ai/cache/clear", `{"scope":"everything"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad scope code = %d", rec.Code)
	}
}

func TestDiagnostics(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	do(t, s, http.MethodPost, "/api/ai/predict", `{"product":""}`)

	rec := do(t, s, http.MethodGet, "/api/ai/errors/stats", "")
	var stats struct {
		Stats errs.Stats `json:"stats"`
	}
	decode(t, rec, &stats)
	if stats.Stats.TotalErrors == 0 {
		t.Errorf("stats = %+v", stats.Stats)
	}

	rec = do(t, s, http.MethodGet, "/api/ai/llm/stats", "")
	if rec.Code != http.StatusOK {
		t.Errorf("llm stats code = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "demandcast_http_requests_total") {
		t.Errorf("metrics code = %d", rec.Code)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	rec := do(t, s, http.MethodGet, "/api/ai/nope", "")
	var body errs.Body
	decode(t, rec, &body)
	if rec.Code != http.StatusNotFound || body.Error.Code != "NOT_FOUND" {
		t.Errorf("code = %d body = %+v", rec.Code, body)
	}
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t, Config{}, false)
	h := requestID(s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	var body errs.Body
	decode(t, rec, &body)
	if body.Error.Code != errs.CodePanic || body.Error.Severity != errs.SeverityCritical || body.RequestID == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestClientLimiter(t *testing.T) {
	l := newClientLimiter(1)
	if !l.allow("a") || l.allow("a") {
		t.Error("limiter a")
	}
	if !l.allow("b") {
		t.Error("clients share a bucket")
	}
}
