// Package forecast answers demand predictions and advisory insights, falling
// back to degraded sources whenever the database, model store or LLM
// providers fail.
package forecast

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/core/retry"
	"github.com/vietddude/demandcast/internal/fallback"
	redisclient "github.com/vietddude/demandcast/internal/infra/redis"
	"github.com/vietddude/demandcast/internal/infra/storage"
	"github.com/vietddude/demandcast/internal/llm"
	"github.com/vietddude/demandcast/internal/model"
)

// MaxHorizon is the longest forecast accepted.
const MaxHorizon = 365

// ModelLoader loads a trained model for a product.
type ModelLoader interface {
	Load(ctx context.Context, product string) (*model.Model, error)
}

// ModelLister lists products that have a trained model.
type ModelLister interface {
	List() ([]string, error)
}

// Deps are the collaborators of a Service. Sales, Models and LLM may be nil.
type Deps struct {
	Sales      storage.SalesRepository
	Models     ModelLoader
	Cache      *redisclient.ModelCache
	Database   *fallback.DatabaseFallback
	Prediction *fallback.PredictionFallback
	Insights   *fallback.InsightFallback
	LLM        *llm.Orchestrator
	Errors     *errs.Handler
}

// Config tunes a Service.
type Config struct {
	HistoryDays int
	// SnapshotRefresh is the minimum age before a database read rewrites
	// the fallback snapshot.
	SnapshotRefresh time.Duration
	DatabasePolicy  retry.Policy
	Regressors      map[string]float64
	InsightOptions  llm.Options
	ChatOptions     llm.Options
	Now             func() time.Time
}

// DefaultConfig returns the settings used in production.
func DefaultConfig() Config {
	return Config{
		HistoryDays:     90,
		SnapshotRefresh: 5 * time.Minute,
		DatabasePolicy:  retry.DatabasePolicy,
		Regressors:      map[string]float64{"avg_temperature": 25, "promotion": 0},
		InsightOptions: llm.Options{
			SystemPrompt: insightSystemPrompt,
			MaxTokens:    220,
			Temperature:  0.6,
		},
		ChatOptions: llm.Options{MaxTokens: 300, Temperature: 0.7},
		Now:         time.Now,
	}
}

// Service is safe for concurrent use.
type Service struct {
	d   Deps
	cfg Config

	loadModel func(ctx context.Context, product string) (*model.Model, error)
	predict   func(ctx context.Context, product string, horizon int, params map[string]any) ([]forecastDay, bool, error)
}

// forecastDay is the cached unit: a prediction plus where it came from.
type forecastDay struct {
	domain.Prediction
	Source string `json:"source"`
}

// NewService creates a Service.
func NewService(d Deps, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if d.Errors == nil {
		d.Errors = errs.NewHandler()
	}
	if d.Cache == nil {
		d.Cache = redisclient.NewModelCache(redisclient.NewClient(redisclient.Config{Disabled: true}))
	}

	s := &Service{d: d, cfg: cfg}
	s.loadModel = redisclient.CachedModelLoad(d.Cache, s.rawLoadModel)
	s.predict = redisclient.CachedPrediction(d.Cache, s.rawPredict)
	return s
}

// Errors returns the shared error handler.
func (s *Service) Errors() *errs.Handler { return s.d.Errors }

// Cache returns the model cache.
func (s *Service) Cache() *redisclient.ModelCache { return s.d.Cache }

// LLM returns the orchestrator, possibly nil.
func (s *Service) LLM() *llm.Orchestrator { return s.d.LLM }

func (s *Service) rawLoadModel(ctx context.Context, product string) (*model.Model, error) {
	if s.d.Models == nil {
		return nil, errs.ModelLoad("model store not configured", errs.WithCause(model.ErrModelNotFound))
	}
	return s.d.Models.Load(ctx, product)
}

// SalesData returns recent sales from the database, or the local snapshot
// when the database is unavailable. The second value names the source.
func (s *Service) SalesData(ctx context.Context) ([]domain.SaleRecord, string) {
	if s.d.Sales == nil {
		return s.d.Database.SalesData(), domain.SourceFallback
	}

	source := "database"
	since := s.cfg.Now().AddDate(0, 0, -s.cfg.HistoryDays)
	rows, err := retry.DoWithFallback(ctx, s.cfg.DatabasePolicy,
		func(ctx context.Context) ([]domain.SaleRecord, error) {
			return s.d.Sales.FetchSales(ctx, since)
		},
		func(context.Context) ([]domain.SaleRecord, error) {
			source = domain.SourceFallback
			return s.d.Database.SalesData(), nil
		},
		retry.WithName("fetch_sales"),
		retry.WithHandler(s.d.Errors),
	)
	if err != nil {
		return s.d.Database.SalesData(), domain.SourceFallback
	}

	if source == "database" && len(rows) > 0 && s.d.Database.Stale(s.cfg.SnapshotRefresh) {
		if err := s.d.Database.Refresh(rows, nil); err != nil {
			slog.Warn("Failed to refresh fallback snapshot", "error", err)
		}
	}
	return rows, source
}

// Products lists known products. The list is cached; on database failure
// the snapshot list is used. Products with a trained model are included.
func (s *Service) Products(ctx context.Context) ([]string, error) {
	return s.d.Cache.Products(ctx, func(ctx context.Context) ([]string, error) {
		var names []string
		if s.d.Sales == nil {
			names = s.d.Database.Products()
		} else {
			var err error
			names, err = retry.DoWithFallback(ctx, s.cfg.DatabasePolicy,
				s.d.Sales.FetchProducts,
				func(context.Context) ([]string, error) { return s.d.Database.Products(), nil },
				retry.WithName("fetch_products"),
				retry.WithHandler(s.d.Errors),
			)
			if err != nil {
				names = s.d.Database.Products()
			}
		}
		return s.withModelProducts(names), nil
	})
}

func (s *Service) withModelProducts(names []string) []string {
	lister, ok := s.d.Models.(ModelLister)
	if !ok {
		return names
	}
	modelNames, err := lister.List()
	if err != nil {
		return names
	}

	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[domain.NormalizeProductName(n)] = struct{}{}
	}
	out := slices.Clone(names)
	for _, n := range modelNames {
		if _, ok := seen[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Service) regressorParams() map[string]any {
	out := make(map[string]any, len(s.cfg.Regressors))
	for k, v := range s.cfg.Regressors {
		out[k] = v
	}
	return out
}

func (s *Service) regressors() map[string]float64 {
	return maps.Clone(s.cfg.Regressors)
}

// WarmUp loads the model of every known product through the cache and
// returns how many were loaded.
func (s *Service) WarmUp(ctx context.Context) int {
	products, err := s.Products(ctx)
	if err != nil {
		slog.Warn("Cache warm-up skipped", "error", err)
		return 0
	}
	return s.d.Cache.WarmUp(ctx, products, func(ctx context.Context, product string) error {
		_, err := s.loadModel(ctx, product)
		return err
	})
}
