package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/llm"
)

const (
	defaultHorizon = 7
	maxBodyBytes   = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the error envelope. status overrides the
// severity mapping when non-zero.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	ctx := map[string]any{"path": r.URL.Path, "method": r.Method}
	body, code := s.errors.Response(err, RequestID(r.Context()), ctx, status)
	writeJSON(w, code, body)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Validation("request body is required")
		}
		return errs.Validation("invalid JSON body", errs.WithCause(err))
	}
	return nil
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.Products(r.Context())
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"products": products,
		"count":    len(products),
	})
}

type predictRequest struct {
	Product   string `json:"product"`
	DaysAhead *int   `json:"days_ahead"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	days := defaultHorizon
	if req.DaysAhead != nil {
		days = *req.DaysAhead
	}

	res, err := s.svc.Predict(r.Context(), req.Product, days)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"prediction": res,
		"request_id": RequestID(r.Context()),
	})
}

func (s *Server) handlePredictAll(w http.ResponseWriter, r *http.Request) {
	days := defaultHorizon
	if v := r.URL.Query().Get("days_ahead"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, errs.Validation("days_ahead must be an integer"), 0)
			return
		}
		days = n
	}

	results, failed := s.svc.PredictAll(r.Context(), days)
	if len(results) == 0 && len(failed) > 0 {
		s.writeError(w, r, failed[0], 0)
		return
	}
	failures := make([]string, len(failed))
	for i, err := range failed {
		failures[i] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"predictions": results,
		"count":       len(results),
		"failed":      failures,
	})
}

type insightRequest struct {
	Product     string    `json:"product"`
	Predictions []float64 `json:"predictions"`
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, 0)
		return
	}

	in, err := s.svc.Insight(r.Context(), req.Product, req.Predictions)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"insight": in,
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, 0)
		return
	}

	reply, err := s.svc.Chat(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chat":    reply,
	})
}

func (s *Server) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   s.errors.Stats(),
	})
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cache":   s.svc.Cache().Info(r.Context()),
	})
}

type cacheClearRequest struct {
	Product string `json:"product"`
	Scope   string `json:"scope"` // all, predictions, models
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var req cacheClearRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err, 0)
			return
		}
	}

	cache := s.svc.Cache()
	var cleared int
	switch {
	case strings.TrimSpace(req.Product) != "":
		cleared = cache.InvalidateProduct(r.Context(), req.Product)
	case req.Scope == "" || req.Scope == "all":
		cleared = cache.InvalidateAll(r.Context())
	case req.Scope == "predictions":
		cleared = cache.InvalidatePredictions(r.Context())
	case req.Scope == "models":
		cleared = cache.InvalidateModels(r.Context())
	default:
		s.writeError(w, r, errs.Validation("scope must be one of all, predictions, models",
			errs.WithContext(map[string]any{"scope": req.Scope})), 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": cleared,
	})
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	orch := s.svc.LLM()
	if orch == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"providers": []string{},
			"stats":     []llm.ProviderStats{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"providers": orch.Providers(),
		"stats":     orch.Monitor().All(),
	})
}
