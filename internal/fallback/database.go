package fallback

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
)

const syntheticDays = 30

// Snapshot is the persisted copy of the relational source.
type Snapshot struct {
	Sales       []domain.SaleRecord `json:"sales_data"`
	Products    []string            `json:"products"`
	LastUpdated time.Time           `json:"last_updated"`
	Synthetic   bool                `json:"synthetic,omitempty"`
}

// DatabaseFallback serves sales history and the product list from a local
// snapshot, synthesizing one on first use when none exists.
type DatabaseFallback struct {
	mu    sync.Mutex
	store fileStore
	s     settings
	snap  *Snapshot
}

// NewDatabaseFallback creates a DatabaseFallback rooted at dir.
func NewDatabaseFallback(dir string, opts ...Option) *DatabaseFallback {
	return &DatabaseFallback{store: fileStore{dir: dir}, s: newSettings(opts)}
}

// SalesData returns a copy of the snapshot sales.
func (f *DatabaseFallback) SalesData() []domain.SaleRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ensure().Sales)
}

// Products returns the snapshot product list.
func (f *DatabaseFallback) Products() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.ensure()
	if len(snap.Products) > 0 {
		return slices.Clone(snap.Products)
	}
	return productsOf(snap.Sales)
}

// LastUpdated returns when the snapshot was written.
func (f *DatabaseFallback) LastUpdated() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensure().LastUpdated
}

// Stale reports whether the snapshot is synthetic or older than maxAge.
func (f *DatabaseFallback) Stale(maxAge time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil && !f.load() {
		return true
	}
	return f.snap.Synthetic || f.s.now().Sub(f.snap.LastUpdated) >= maxAge
}

// Refresh replaces the snapshot with fresh data from the primary source.
func (f *DatabaseFallback) Refresh(sales []domain.SaleRecord, products []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(products) == 0 {
		products = productsOf(sales)
	}
	snap := &Snapshot{
		Sales:       slices.Clone(sales),
		Products:    slices.Clone(products),
		LastUpdated: f.s.now(),
	}
	if err := f.store.save(DatabaseFile, snap); err != nil {
		return err
	}
	f.snap = snap
	return nil
}

func (f *DatabaseFallback) ensure() *Snapshot {
	if f.snap != nil || f.load() {
		return f.snap
	}

	f.snap = f.synthesize()
	if err := f.store.save(DatabaseFile, f.snap); err != nil {
		slog.Warn("Failed to persist synthetic snapshot", "error", err)
	}
	slog.Info("Synthesized fallback sales data", "rows", len(f.snap.Sales))
	return f.snap
}

// load reads the persisted snapshot, reporting whether a usable one exists.
func (f *DatabaseFallback) load() bool {
	var snap Snapshot
	ok, err := f.store.load(DatabaseFile, &snap)
	if err != nil {
		slog.Warn("Fallback snapshot unreadable", "error", err)
		return false
	}
	if !ok || len(snap.Sales) == 0 {
		return false
	}
	f.snap = &snap
	return true
}

func (f *DatabaseFallback) synthesize() *Snapshot {
	now := f.s.now()
	start := startOfDay(now).AddDate(0, 0, -syntheticDays)
	rng := f.s.rng

	sales := make([]domain.SaleRecord, 0, syntheticDays*len(domain.DefaultProducts))
	for day := range syntheticDays {
		date := start.AddDate(0, 0, day)
		for _, p := range domain.DefaultProducts {
			qty := 20 + rng.IntN(81)
			if domain.IsWeekend(date) {
				qty = int(float64(qty) * 1.5)
			}
			promo := 0
			if rng.Float64() < 0.2 {
				promo = rng.IntN(2)
			}
			sales = append(sales, domain.SaleRecord{
				Date:           date,
				Product:        p,
				Quantity:       qty,
				AvgTemperature: round1(15 + rng.Float64()*20),
				Promotion:      promo,
			})
		}
	}
	return &Snapshot{
		Sales:       sales,
		Products:    slices.Clone(domain.DefaultProducts),
		LastUpdated: now,
		Synthetic:   true,
	}
}

func productsOf(sales []domain.SaleRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range sales {
		if _, ok := seen[s.Product]; ok {
			continue
		}
		seen[s.Product] = struct{}{}
		out = append(out, s.Product)
	}
	slices.Sort(out)
	return out
}
