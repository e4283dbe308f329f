// Package api exposes forecasts, insights and diagnostics over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/forecast"
	"github.com/vietddude/demandcast/internal/health"
)

// Config holds server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	InsightsPerHour int // 0 disables the insight rate limit
	RequestTimeout  time.Duration
}

// Server is the HTTP front of the forecast service.
type Server struct {
	cfg        Config
	svc        *forecast.Service
	checker    *health.Checker
	errors     *errs.Handler
	router     chi.Router
	httpServer *http.Server
}

// New creates a server and builds its routes.
func New(cfg Config, svc *forecast.Service, checker *health.Checker) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		checker: checker,
		errors:  svc.Errors(),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.checker.Handler())
	r.Get("/health/detailed", s.checker.DetailedHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/ai", func(r chi.Router) {
		r.Get("/products", s.handleProducts)
		r.Post("/predict", s.handlePredict)
		r.Get("/predict-all", s.handlePredictAll)
		r.With(s.rateLimit(s.cfg.InsightsPerHour)).Post("/generate-insight", s.handleInsight)
		r.Post("/chat", s.handleChat)
		r.Get("/errors/stats", s.handleErrorStats)
		r.Get("/cache/info", s.handleCacheInfo)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Get("/llm/stats", s.handleLLMStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errs.New("NOT_FOUND", "route not found", errs.CategoryValidation, errs.SeverityLow,
			errs.WithUserMessage("Endpoint not found.")), http.StatusNotFound)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
