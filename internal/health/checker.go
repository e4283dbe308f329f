package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/demandcast/internal/metrics"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultCooldown = 300 * time.Second

	maxHistory = 100
	maxAlerts  = 100
	staleAfter = 5 * time.Minute
)

// CheckFunc probes one component. An error means the probe itself broke,
// not that the component is unhealthy.
type CheckFunc func(ctx context.Context) (ComponentHealth, error)

type registered struct {
	name string
	typ  ComponentType
	fn   CheckFunc
}

type uptimeCounter struct {
	total   int
	healthy int
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each individual check.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCooldown sets how long an identical alert is suppressed.
func WithCooldown(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithOverview sets the source of system-wide metrics attached to reports.
func WithOverview(fn func(ctx context.Context) []Metric) Option {
	return func(c *Checker) { c.overview = fn }
}

// OnReport registers a hook called after every full check.
func OnReport(fn func(*Report)) Option {
	return func(c *Checker) { c.hooks = append(c.hooks, fn) }
}

// Checker runs registered checks and keeps their history. It is safe for
// concurrent use.
type Checker struct {
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time
	overview func(ctx context.Context) []Metric
	hooks    []func(*Report)

	mu      sync.Mutex
	checks  []registered
	uptime  map[string]*uptimeCounter
	history map[string][]HistoryPoint
	alerts  []Alert
	last    *Report
}

// NewChecker creates a Checker with no checks registered.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout:  DefaultTimeout,
		cooldown: DefaultCooldown,
		now:      time.Now,
		uptime:   make(map[string]*uptimeCounter),
		history:  make(map[string][]HistoryPoint),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a check. Checks run in registration order in reports.
func (c *Checker) Register(name string, typ ComponentType, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, registered{name: name, typ: typ, fn: fn})
}

// Components lists registered check names.
func (c *Checker) Components() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.checks))
	for i, r := range c.checks {
		out[i] = r.name
	}
	return out
}

type outcome struct {
	health ComponentHealth
	broken error
}

// Check runs every registered check concurrently and returns the report.
func (c *Checker) Check(ctx context.Context) *Report {
	start := c.now()

	c.mu.Lock()
	checks := append([]registered(nil), c.checks...)
	c.mu.Unlock()

	results := make([]outcome, len(checks))
	var g errgroup.Group
	for i, r := range checks {
		g.Go(func() error {
			results[i] = c.run(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	var overview []Metric
	if c.overview != nil {
		overview = c.overview(ctx)
	}

	report := &Report{
		Components:      make([]ComponentHealth, 0, len(results)),
		SystemMetrics:   overview,
		Timestamp:       c.now(),
		TotalComponents: len(results),
	}
	statuses := make([]Status, 0, len(results))

	c.mu.Lock()
	for _, o := range results {
		h := o.health
		h.UptimePercentage = c.trackUptime(h)
		c.record(h)

		switch {
		case o.broken != nil:
			report.Alerts = append(report.Alerts,
				fmt.Sprintf("CRITICAL: %s health check failed - %v", h.Name, o.broken))
		case h.Status == StatusCritical:
			msg := h.ErrorMessage
			if msg == "" {
				msg = "Component is down"
			}
			report.Alerts = append(report.Alerts, fmt.Sprintf("CRITICAL: %s - %s", h.Name, msg))
		case h.Status != StatusHealthy:
			report.Alerts = append(report.Alerts, fmt.Sprintf("WARNING: %s - Performance degraded", h.Name))
		}

		switch h.Status {
		case StatusHealthy:
			report.HealthyComponents++
		case StatusWarning:
			report.WarningComponents++
		case StatusCritical:
			report.CriticalComponents++
		}
		statuses = append(statuses, h.Status)
		report.Components = append(report.Components, h)
	}
	report.OverallStatus = Overall(statuses...)
	c.processAlerts(report.Alerts, report.Timestamp)
	c.last = report
	c.mu.Unlock()

	for _, h := range report.Components {
		metrics.ComponentStatus.WithLabelValues(h.Name).Set(h.Status.Gauge())
	}

	slog.Info("Health check completed",
		"status", report.OverallStatus,
		"healthy", report.HealthyComponents,
		"total", report.TotalComponents,
		"duration", c.now().Sub(start),
	)

	for _, hook := range c.hooks {
		hook(report)
	}
	return report
}

func (c *Checker) run(ctx context.Context, r registered) (o outcome) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.ComponentCheckDuration.WithLabelValues(r.name).Observe(elapsed.Seconds())
		if rec := recover(); rec != nil {
			o = outcome{broken: fmt.Errorf("panic: %v", rec)}
		}
		if o.broken != nil {
			o.health = ComponentHealth{
				Name:         r.name,
				Type:         r.typ,
				Status:       StatusUnknown,
				ResponseTime: elapsed,
				Metrics:      []Metric{},
				Details:      map[string]any{"error": o.broken.Error()},
				ErrorMessage: o.broken.Error(),
			}
			slog.Error("Health check failed", "component", r.name, "error", o.broken)
		}
		o.health.LastCheck = c.now()
	}()

	h, err := r.fn(ctx)
	if err != nil {
		return outcome{broken: err}
	}
	h.Name = r.name
	if h.Type == "" {
		h.Type = r.typ
	}
	if h.Status == "" {
		h.Status = Worst(h.Metrics)
	}
	if h.ResponseTime == 0 {
		h.ResponseTime = time.Since(start)
	}
	if h.Metrics == nil {
		h.Metrics = []Metric{}
	}
	return outcome{health: h}
}

// trackUptime counts the check and returns the running uptime percentage.
// External APIs and system resources count as up unless critical.
func (c *Checker) trackUptime(h ComponentHealth) float64 {
	u, ok := c.uptime[h.Name]
	if !ok {
		u = &uptimeCounter{}
		c.uptime[h.Name] = u
	}
	u.total++

	up := h.Status == StatusHealthy
	if h.Type == TypeAPIExternal || h.Type == TypeSystem {
		up = h.Status != StatusCritical && h.Status != StatusUnknown
	}
	if up {
		u.healthy++
	}
	return float64(u.healthy) / float64(u.total) * 100
}

func (c *Checker) record(h ComponentHealth) {
	hist := append(c.history[h.Name], HistoryPoint{
		Timestamp:        h.LastCheck,
		Status:           h.Status,
		ResponseTime:     h.ResponseTime,
		UptimePercentage: h.UptimePercentage,
	})
	if len(hist) > maxHistory {
		hist = hist[len(hist)-maxHistory:]
	}
	c.history[h.Name] = hist
}

// processAlerts stores alerts not already raised within the cooldown.
func (c *Checker) processAlerts(alerts []string, now time.Time) {
	for _, msg := range alerts {
		if c.recentlyRaised(msg, now) {
			continue
		}
		a := Alert{Timestamp: now, Message: msg, Level: AlertWarning}
		if strings.HasPrefix(msg, string(AlertCritical)) {
			a.Level = AlertCritical
		}
		c.alerts = append(c.alerts, a)

		if a.Level == AlertCritical {
			slog.Error("HEALTH ALERT", "alert", msg)
		} else {
			slog.Warn("HEALTH ALERT", "alert", msg)
		}
	}
	if len(c.alerts) > maxAlerts {
		c.alerts = append([]Alert(nil), c.alerts[len(c.alerts)-maxAlerts:]...)
	}
}

func (c *Checker) recentlyRaised(msg string, now time.Time) bool {
	for i := len(c.alerts) - 1; i >= 0; i-- {
		a := c.alerts[i]
		if now.Sub(a.Timestamp) >= c.cooldown {
			return false
		}
		if a.Message == msg {
			return true
		}
	}
	return false
}

// Last returns the latest report, or nil before the first check.
func (c *Checker) Last() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ComponentHistory returns up to limit recent points for a component, oldest
// first. A non-positive limit returns everything retained.
func (c *Checker) ComponentHistory(name string, limit int) []HistoryPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tail(c.history[name], limit)
}

// AlertHistory returns up to limit recent alerts, oldest first.
func (c *Checker) AlertHistory(limit int) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tail(c.alerts, limit)
}

func tail[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return append([]T(nil), s...)
}

// Summary reports the last check without probing anything.
func (c *Checker) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return Summary{Status: "not_checked", Message: "Health check not performed yet"}
	}
	age := c.now().Sub(c.last.Timestamp)
	if age > staleAfter {
		return Summary{
			Status:    "stale",
			Message:   fmt.Sprintf("Last check was %d minutes ago", int(age.Minutes())),
			LastCheck: c.last.Timestamp,
		}
	}
	return Summary{
		Status:            string(c.last.OverallStatus),
		HealthyComponents: c.last.HealthyComponents,
		TotalComponents:   c.last.TotalComponents,
		ActiveAlerts:      len(c.last.Alerts),
		LastCheck:         c.last.Timestamp,
	}
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}
