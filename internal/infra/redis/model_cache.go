package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
)

// TTL tiers.
const (
	TTLModel       = 6 * time.Hour
	TTLPrediction  = 5 * time.Minute
	TTLProductList = 10 * time.Minute
)

const (
	prefixModel      = "model"
	prefixPrediction = "prediction"
	prefixProducts   = "products"
)

// ModelCache layers forecasting-specific tiers on top of Client.
type ModelCache struct {
	c *Client
}

// NewModelCache creates a ModelCache.
func NewModelCache(c *Client) *ModelCache {
	return &ModelCache{c: c}
}

// Client returns the underlying cache client.
func (m *ModelCache) Client() *Client { return m.c }

func (m *ModelCache) modelKey(product string) string {
	return m.c.Key(prefixModel+":"+domain.NormalizeProductName(product), nil, nil)
}

func (m *ModelCache) predictionKey(product string, horizon int, params map[string]any) string {
	norm := domain.NormalizeProductName(product)
	return m.c.Key(prefixPrediction+":"+norm, []any{norm, horizon}, params)
}

func (m *ModelCache) productsKey() string {
	return m.c.Key(prefixProducts, nil, nil)
}

// CachedModelLoad wraps a model loader so non-nil results are cached for
// TTLModel. Errors and nil models are never cached.
func CachedModelLoad[M any](m *ModelCache, load func(ctx context.Context, product string) (*M, error)) func(ctx context.Context, product string) (*M, error) {
	return func(ctx context.Context, product string) (*M, error) {
		key := m.modelKey(product)
		var cached M
		if m.c.Get(ctx, key, &cached) {
			slog.Debug("Model served from cache", "product", product)
			return &cached, nil
		}

		model, err := load(ctx, product)
		if err != nil {
			return nil, err
		}
		if model != nil {
			m.c.Set(ctx, key, model, TTLModel)
		}
		return model, nil
	}
}

// PredictFunc produces a forecast for product over horizon days.
type PredictFunc[P any] func(ctx context.Context, product string, horizon int, params map[string]any) ([]P, error)

// CachedPrediction wraps a predictor so non-empty results are cached for
// TTLPrediction. The returned function also reports whether the result came
// from the cache.
func CachedPrediction[P any](m *ModelCache, predict PredictFunc[P]) func(ctx context.Context, product string, horizon int, params map[string]any) ([]P, bool, error) {
	return func(ctx context.Context, product string, horizon int, params map[string]any) ([]P, bool, error) {
		key := m.predictionKey(product, horizon, params)
		var cached []P
		if m.c.Get(ctx, key, &cached) && len(cached) > 0 {
			return cached, true, nil
		}

		out, err := predict(ctx, product, horizon, params)
		if err != nil {
			return nil, false, err
		}
		if len(out) > 0 {
			m.c.Set(ctx, key, out, TTLPrediction)
		}
		return out, false, nil
	}
}

// Products returns the cached product list or loads and caches it.
func (m *ModelCache) Products(ctx context.Context, load func(ctx context.Context) ([]string, error)) ([]string, error) {
	key := m.productsKey()
	var cached []string
	if m.c.Get(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}
	products, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if len(products) > 0 {
		m.c.Set(ctx, key, products, TTLProductList)
	}
	return products, nil
}

// InvalidateProduct drops the cached model and predictions of one product.
func (m *ModelCache) InvalidateProduct(ctx context.Context, product string) int {
	n := 0
	if m.c.Delete(ctx, m.modelKey(product)) {
		n++
	}
	norm := domain.NormalizeProductName(product)
	n += m.c.ClearPattern(ctx, fmt.Sprintf("%s:%s:%s:*", m.c.namespace, prefixPrediction, norm))
	slog.Info("Cache invalidated for product", "product", product, "removed", n)
	return n
}

// InvalidatePredictions drops every cached prediction.
func (m *ModelCache) InvalidatePredictions(ctx context.Context) int {
	return m.c.ClearPattern(ctx, m.c.namespace+":"+prefixPrediction+":*")
}

// InvalidateModels drops every cached model.
func (m *ModelCache) InvalidateModels(ctx context.Context) int {
	return m.c.ClearPattern(ctx, m.c.namespace+":"+prefixModel+":*")
}

// InvalidateAll drops every namespaced entry.
func (m *ModelCache) InvalidateAll(ctx context.Context) int {
	n := m.c.ClearPattern(ctx, m.c.namespace+":*")
	slog.Info("Cache cleared", "removed", n)
	return n
}

// WarmUp runs load for each product so its model lands in the cache and
// returns how many succeeded.
func (m *ModelCache) WarmUp(ctx context.Context, products []string, load func(ctx context.Context, product string) error) int {
	if !m.c.Enabled() {
		return 0
	}
	warmed := 0
	for _, p := range products {
		if err := load(ctx, p); err != nil {
			slog.Debug("Warm-up skipped product", "product", p, "error", err)
			continue
		}
		warmed++
	}
	slog.Info("Cache warm-up finished", "warmed", warmed, "total", len(products))
	return warmed
}

// Info is a breakdown of cache contents.
type Info struct {
	Stats       Stats             `json:"stats"`
	Models      int               `json:"cached_models"`
	Predictions int               `json:"cached_predictions"`
	Other       int               `json:"other_keys"`
	TTLs        map[string]string `json:"ttl_settings"`
}

// Info returns stats plus key counts per tier.
func (m *ModelCache) Info(ctx context.Context) Info {
	info := Info{
		Stats: m.c.Stats(ctx),
		TTLs: map[string]string{
			"model":        TTLModel.String(),
			"prediction":   TTLPrediction.String(),
			"product_list": TTLProductList.String(),
		},
	}
	modelPrefix := m.c.namespace + ":" + prefixModel + ":"
	predPrefix := m.c.namespace + ":" + prefixPrediction + ":"
	for _, k := range m.c.Keys(ctx, m.c.namespace+":*") {
		switch {
		case strings.HasPrefix(k, modelPrefix):
			info.Models++
		case strings.HasPrefix(k, predPrefix):
			info.Predictions++
		default:
			info.Other++
		}
	}
	return info
}

// Probe is the result of a cache round trip.
type Probe struct {
	Enabled      bool
	WriteLatency time.Duration
	ReadLatency  time.Duration
	HitRate      float64
	Lookups      int64
	Err          error
}

// Probe writes, reads back and deletes a test key.
func (m *ModelCache) Probe(ctx context.Context) Probe {
	p := Probe{Enabled: m.c.Enabled(), HitRate: m.c.HitRate(), Lookups: m.c.hits.Load() + m.c.misses.Load()}
	if !p.Enabled {
		p.Err = fmt.Errorf("cache disabled")
		return p
	}

	key := m.c.namespace + ":health_check:" + fmt.Sprint(time.Now().UnixNano())
	want := time.Now().UTC().Format(time.RFC3339Nano)

	start := time.Now()
	if err := m.c.rdb.Set(ctx, key, want, time.Minute).Err(); err != nil {
		p.Err = fmt.Errorf("write failed: %w", err)
		return p
	}
	p.WriteLatency = time.Since(start)

	start = time.Now()
	got, err := m.c.rdb.Get(ctx, key).Result()
	p.ReadLatency = time.Since(start)
	_ = m.c.rdb.Del(ctx, key).Err()
	if err != nil {
		p.Err = fmt.Errorf("read failed: %w", err)
		return p
	}
	if got != want {
		p.Err = fmt.Errorf("read back mismatch")
	}
	return p
}
