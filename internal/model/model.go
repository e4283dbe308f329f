// Package model loads trained forecasting artifacts and evaluates them.
package model

import (
	"math"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
)

// Model is an additive forecast: a linear trend plus a weekly seasonal term
// plus linear regressor effects.
type Model struct {
	Product       string             `json:"product"`
	TrainedAt     time.Time          `json:"trained_at"`
	Origin        time.Time          `json:"origin"`
	Intercept     float64            `json:"intercept"`
	Slope         float64            `json:"slope"`
	Weekly        [7]float64         `json:"weekly"`
	Regressors    map[string]float64 `json:"regressors,omitempty"`
	IntervalWidth float64            `json:"interval_width"`
}

// Predict evaluates the model for days consecutive dates from start.
// Missing regressor values count as zero. Demand never goes below zero.
func (m *Model) Predict(start time.Time, days int, regressors map[string]float64) []domain.Prediction {
	out := make([]domain.Prediction, 0, days)
	for i := range days {
		date := start.AddDate(0, 0, i)
		t := date.Sub(m.Origin).Hours() / 24

		yhat := m.Intercept + m.Slope*t + m.Weekly[date.Weekday()]
		for name, coef := range m.Regressors {
			yhat += coef * regressors[name]
		}
		yhat = math.Max(0, yhat)

		out = append(out, domain.Prediction{
			Date:            date,
			PredictedDemand: round1(yhat),
			LowerBound:      round1(math.Max(0, yhat-m.IntervalWidth)),
			UpperBound:      round1(yhat + m.IntervalWidth),
		})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
