package fallback

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
)

// InsightTTL is how long a cached provider insight stays valid.
const InsightTTL = 7 * 24 * time.Hour

const maxStoredPrompt = 200

var insightTemplates = map[string][]string{
	domain.DemandGeneral: {
		"Keep stock levels balanced with the forecast and review them daily.",
		"Track actual sales against the forecast to adjust production early.",
		"Account for local factors such as weather and events when planning production.",
		"Review the recent sales pattern before committing to large batches.",
	},
	domain.DemandHigh: {
		"High demand expected. Increase production by 20-30% and secure raw materials.",
		"Demand peak ahead. Make sure stock and staff are sized for it.",
		"Strong sales period forecast. Consider bundles to raise the average ticket.",
	},
	domain.DemandLow: {
		"Low demand expected. Reduce production to avoid waste.",
		"Slow period ahead. A good moment for targeted promotions.",
		"Reduced demand forecast. Review production costs and batch sizes.",
	},
	seasonalClass: {
		"Demand swings noticeably across the week. Plan production per weekday.",
		"Weekends shift demand for this product. Adjust stock before Friday.",
		"Variation between days is high. Keep a safety margin on peak days.",
	},
}

const (
	seasonalClass     = "seasonal"
	seasonalThreshold = 0.3
)

type insightEntry struct {
	Insight   string    `json:"insight"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt"`
}

// InsightFallback caches provider insights by prompt and produces template
// insights when no provider answers.
type InsightFallback struct {
	mu      sync.Mutex
	store   fileStore
	s       settings
	entries map[string]insightEntry
}

// NewInsightFallback creates an InsightFallback rooted at dir.
func NewInsightFallback(dir string, opts ...Option) *InsightFallback {
	return &InsightFallback{store: fileStore{dir: dir}, s: newSettings(opts)}
}

// PromptKey is the short content hash used to index cached insights.
func PromptKey(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

func (f *InsightFallback) load() {
	if f.entries != nil {
		return
	}
	f.entries = make(map[string]insightEntry)
	if _, err := f.store.load(InsightsFile, &f.entries); err != nil {
		slog.Warn("Insight cache unreadable, starting empty", "error", err)
		f.entries = make(map[string]insightEntry)
	}
}

// Cached returns a stored insight for prompt if it is younger than InsightTTL.
func (f *InsightFallback) Cached(prompt string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.load()

	e, ok := f.entries[PromptKey(prompt)]
	if !ok || f.s.now().Sub(e.Timestamp) > InsightTTL {
		return "", false
	}
	return e.Insight, true
}

// Save stores a provider insight for prompt.
func (f *InsightFallback) Save(prompt, insight string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.load()

	stored := prompt
	if len(stored) > maxStoredPrompt {
		stored = stored[:maxStoredPrompt]
	}
	f.entries[PromptKey(prompt)] = insightEntry{
		Insight:   insight,
		Timestamp: f.s.now(),
		Prompt:    stored,
	}
	return f.store.save(InsightsFile, f.entries)
}

// Generate builds an offline insight from the forecast values. The template
// pool is chosen from the average prediction.
func (f *InsightFallback) Generate(product string, predictions []float64) domain.Insight {
	avg := domain.Mean(predictions)
	class := domain.ClassifyDemand(avg)

	f.mu.Lock()
	tip := pick(f.s, insightTemplates[class])
	var seasonal string
	if variation(predictions, avg) > seasonalThreshold {
		seasonal = pick(f.s, insightTemplates[seasonalClass])
	}
	f.mu.Unlock()

	text := fmt.Sprintf("**Analysis for %s:**\n\n%s\n", domain.DisplayProductName(product), tip)
	if seasonal != "" {
		text += "\n" + seasonal + "\n"
	}
	text += fmt.Sprintf("\n- Forecast analyzed for %d days (average %.1f units/day).", len(predictions), avg)
	text += "\n- Recommendations based on historical data and seasonal patterns."
	text += "\n- *Insight generated offline. Full analysis resumes when the AI service reconnects.*"

	return domain.Insight{
		Product:  product,
		Text:     text,
		Provider: "offline",
		Offline:  true,
		Metadata: map[string]any{
			"demand_class": class,
			"average":      round1(avg),
			"days":         len(predictions),
		},
	}
}

func pick(s settings, pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[s.rng.IntN(len(pool))]
}

// variation is the coefficient of variation of values.
func variation(values []float64, mean float64) float64 {
	if len(values) < 2 || mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}
