package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/metrics"
)

const fallbackBand = 0.15

func validate(product string, horizon int) error {
	if strings.TrimSpace(product) == "" {
		return errs.Validation("product name is required")
	}
	if horizon < 1 || horizon > MaxHorizon {
		return errs.Validation(fmt.Sprintf("days_ahead must be between 1 and %d", MaxHorizon),
			errs.WithContext(map[string]any{"days_ahead": horizon}))
	}
	return nil
}

func (s *Service) forecastStart() time.Time {
	now := s.cfg.Now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// Predict forecasts demand for product over horizon days starting tomorrow.
// For valid input it always returns a result: the trained model when one can
// be loaded, otherwise the prediction fallback.
func (s *Service) Predict(ctx context.Context, product string, horizon int) (*domain.PredictionResult, error) {
	product = strings.TrimSpace(product)
	if err := validate(product, horizon); err != nil {
		return nil, err
	}

	days, cached, err := s.predict(ctx, product, horizon, s.regressorParams())
	if err != nil || len(days) == 0 {
		// The uncached path never fails; this only guards a broken cache wrapper.
		days, err = s.rawPredict(ctx, product, horizon, nil)
		if err != nil {
			return nil, err
		}
		cached = false
	}

	res := &domain.PredictionResult{
		Product:     product,
		Horizon:     horizon,
		Predictions: make([]domain.Prediction, len(days)),
		Source:      days[0].Source,
		Cached:      cached,
		GeneratedAt: s.cfg.Now(),
	}
	for i, d := range days {
		res.Predictions[i] = d.Prediction
	}
	res.Average = math.Round(domain.Mean(res.Values())*10) / 10
	res.DemandClass = domain.ClassifyDemand(domain.Mean(res.Values()))
	return res, nil
}

func (s *Service) rawPredict(ctx context.Context, product string, horizon int, _ map[string]any) ([]forecastDay, error) {
	start := s.forecastStart()

	m, err := s.loadModel(ctx, product)
	if err == nil && m != nil {
		preds := m.Predict(start, horizon, s.regressors())
		out := make([]forecastDay, len(preds))
		for i, p := range preds {
			out[i] = forecastDay{Prediction: p, Source: domain.SourceModel}
		}
		return out, nil
	}
	if err != nil {
		s.d.Errors.Handle(err, map[string]any{"product": product, "operation": "load_model"})
	}

	history, _ := s.SalesData(ctx)
	values, method := s.d.Prediction.Predict(product, horizon, history, start)
	out := make([]forecastDay, len(values))
	for i, v := range values {
		out[i] = forecastDay{
			Prediction: domain.Prediction{
				Date:            start.AddDate(0, 0, i),
				PredictedDemand: v,
				LowerBound:      math.Max(0, math.Round(v*(1-fallbackBand)*10)/10),
				UpperBound:      math.Round(v*(1+fallbackBand)*10) / 10,
			},
			Source: domain.SourceFallback,
		}
	}
	s.logFallback(product, method)
	return out, nil
}

func (s *Service) logFallback(product, method string) {
	metrics.FallbackTotal.WithLabelValues("prediction").Inc()
	slog.Info("Served fallback prediction", "product", product, "method", method)
}

// PredictAll forecasts every known product. Products that fail are skipped
// and their errors returned alongside the successful results.
func (s *Service) PredictAll(ctx context.Context, horizon int) ([]*domain.PredictionResult, []error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, []error{err}
	}
	var (
		out    []*domain.PredictionResult
		failed []error
	)
	for _, p := range products {
		if ctx.Err() != nil {
			failed = append(failed, ctx.Err())
			break
		}
		res, err := s.Predict(ctx, p, horizon)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", p, err))
			s.d.Errors.Handle(err, map[string]any{"product": p, "operation": "predict_all"})
			continue
		}
		out = append(out, res)
	}
	return out, failed
}
