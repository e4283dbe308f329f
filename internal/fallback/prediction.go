package fallback

import (
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
)

// PredictionTTL is how long a generated forecast is reused.
const PredictionTTL = 6 * time.Hour

const historyWindow = 7

// Prediction methods.
const (
	MethodCache      = "cache"
	MethodHistorical = "historical"
	MethodHeuristic  = "heuristic"
)

type category struct {
	name          string
	keywords      []string
	base          float64
	weekendFactor float64
	variation     float64
}

var categories = []category{
	{"bread", []string{"pao", "bread"}, 80, 0.8, 0.15},
	{"cake", []string{"bolo", "torta", "cake"}, 45, 1.3, 0.25},
	{"coffee", []string{"cafe", "cappuccino", "coffee"}, 120, 1.1, 0.20},
	{"juice", []string{"suco", "juice"}, 60, 1.2, 0.18},
	{"sweet", []string{"brigadeiro", "doce", "sweet"}, 35, 1.4, 0.30},
}

var defaultCategory = category{"default", nil, 50, 1.0, 0.20}

func categoryOf(product string) category {
	name := strings.ToLower(domain.NormalizeProductName(product))
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(name, kw) {
				return c
			}
		}
	}
	return defaultCategory
}

type predictionEntry struct {
	Predictions []float64 `json:"predictions"`
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
}

// PredictionFallback produces forecasts without a trained model.
type PredictionFallback struct {
	mu      sync.Mutex
	store   fileStore
	s       settings
	entries map[string]predictionEntry
}

// NewPredictionFallback creates a PredictionFallback rooted at dir.
func NewPredictionFallback(dir string, opts ...Option) *PredictionFallback {
	return &PredictionFallback{store: fileStore{dir: dir}, s: newSettings(opts)}
}

func (f *PredictionFallback) load() {
	if f.entries != nil {
		return
	}
	f.entries = make(map[string]predictionEntry)
	if _, err := f.store.load(PredictionsFile, &f.entries); err != nil {
		slog.Warn("Prediction cache unreadable, starting empty", "error", err)
		f.entries = make(map[string]predictionEntry)
	}
}

// Predict returns days values starting at start. A cached forecast younger
// than PredictionTTL and at least days long is reused; otherwise the trailing
// mean of the product history is used, or category heuristics when there is
// no history. Every value is at least 1.
func (f *PredictionFallback) Predict(product string, days int, history []domain.SaleRecord, start time.Time) ([]float64, string) {
	if days < 1 {
		days = 1
	}
	key := domain.NormalizeProductName(product)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.load()

	if e, ok := f.entries[key]; ok && len(e.Predictions) >= days && f.s.now().Sub(e.Timestamp) <= PredictionTTL {
		return slices.Clone(e.Predictions[:days]), MethodCache
	}

	var (
		out    []float64
		method string
	)
	if qty := productHistory(key, history); len(qty) > 0 {
		out, method = f.historical(qty, days, start), MethodHistorical
	} else {
		out, method = f.heuristic(product, days, start), MethodHeuristic
	}

	f.entries[key] = predictionEntry{Predictions: out, Timestamp: f.s.now(), Method: method}
	if err := f.store.save(PredictionsFile, f.entries); err != nil {
		slog.Warn("Failed to persist fallback prediction", "product", product, "error", err)
	}
	return slices.Clone(out), method
}

func (f *PredictionFallback) historical(qty []float64, days int, start time.Time) []float64 {
	window := qty
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}
	avg := domain.Mean(window)

	out := make([]float64, days)
	for i := range out {
		v := avg
		if domain.IsWeekend(start.AddDate(0, 0, i)) {
			v *= 1.2
		}
		v *= 0.9 + f.s.rng.Float64()*0.2
		out[i] = math.Max(1, round1(v))
	}
	return out
}

func (f *PredictionFallback) heuristic(product string, days int, start time.Time) []float64 {
	c := categoryOf(product)
	out := make([]float64, days)
	for i := range out {
		v := c.base
		if domain.IsWeekend(start.AddDate(0, 0, i)) {
			v *= c.weekendFactor
		}
		v *= 1 + (f.s.rng.Float64()*2-1)*c.variation
		out[i] = math.Max(1, round1(v))
	}
	return out
}

// productHistory returns quantities for product ordered by date.
func productHistory(normalized string, history []domain.SaleRecord) []float64 {
	rows := make([]domain.SaleRecord, 0, len(history))
	for _, r := range history {
		if domain.NormalizeProductName(r.Product) == normalized {
			rows = append(rows, r)
		}
	}
	slices.SortStableFunc(rows, func(a, b domain.SaleRecord) int {
		return a.Date.Compare(b.Date)
	})
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = float64(r.Quantity)
	}
	return out
}
