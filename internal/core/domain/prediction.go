package domain

import "time"

// Prediction source labels.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

// Demand classes derived from the average predicted demand.
const (
	DemandHigh    = "high_demand"
	DemandLow     = "low_demand"
	DemandGeneral = "general"
)

// Prediction is one forecast day.
type Prediction struct {
	Date            time.Time `json:"date"`
	PredictedDemand float64   `json:"predicted_demand"`
	LowerBound      float64   `json:"lower_bound"`
	UpperBound      float64   `json:"upper_bound"`
}

// PredictionResult is the forecast for one product.
type PredictionResult struct {
	Product     string       `json:"product"`
	Horizon     int          `json:"days_ahead"`
	Predictions []Prediction `json:"predictions"`
	Average     float64      `json:"average"`
	DemandClass string       `json:"demand_class"`
	Source      string       `json:"source"`
	Cached      bool         `json:"cached"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Values returns the predicted demand per day.
func (r *PredictionResult) Values() []float64 {
	out := make([]float64, len(r.Predictions))
	for i, p := range r.Predictions {
		out[i] = p.PredictedDemand
	}
	return out
}

// ClassifyDemand maps an average prediction to a demand class.
// Above 80 is high, below 30 is low.
func ClassifyDemand(avg float64) string {
	switch {
	case avg > 80:
		return DemandHigh
	case avg < 30:
		return DemandLow
	default:
		return DemandGeneral
	}
}

// Mean returns the arithmetic mean of values, zero when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Insight is an advisory text produced for a forecast.
type Insight struct {
	Product    string         `json:"product"`
	Text       string         `json:"insight"`
	Action     string         `json:"action,omitempty"`
	Confidence int            `json:"confidence,omitempty"`
	Provider   string         `json:"provider"`
	Offline    bool           `json:"offline"`
	Cached     bool           `json:"cached"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
