package llm

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/demandcast/internal/core/errs"
)

// ProviderStatus represents the observed state of a provider.
type ProviderStatus string

const (
	StatusHealthy   ProviderStatus = "healthy"   // Provider is answering normally
	StatusDegraded  ProviderStatus = "degraded"  // Provider is slow or failing often
	StatusThrottled ProviderStatus = "throttled" // Provider is rate limiting
	StatusUnused    ProviderStatus = "unused"    // No requests observed yet
)

// ProviderStats is a snapshot of one provider's recent behavior.
type ProviderStats struct {
	Provider       string         `json:"provider"`
	Status         ProviderStatus `json:"status"`
	Requests       int            `json:"requests"`
	Successes      int            `json:"successes"`
	Failures       int            `json:"failures"`
	ThrottleCount  int            `json:"throttle_count"`
	ErrorRate      float64        `json:"error_rate"`
	AverageLatency time.Duration  `json:"average_latency"`
	LastError      string         `json:"last_error,omitempty"`
	LastSuccess    time.Time      `json:"last_success,omitempty"`
}

type providerWindow struct {
	latencies    []time.Duration
	outcomes     []bool
	successes    int
	failures     int
	throttles    int
	lastError    string
	lastSuccess  time.Time
	lastThrottle time.Time
}

// Monitor tracks latency and failure rate per provider.
type Monitor struct {
	mu sync.RWMutex

	windows          map[string]*providerWindow
	maxWindow        int
	throttlePatterns []string
	debug            bool

	slowThreshold     time.Duration
	degradedThreshold float64
	throttleCooldown  time.Duration
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		windows:   make(map[string]*providerWindow),
		maxWindow: 100,
		throttlePatterns: []string{
			"rate limit",
			"too many requests",
			"429",
			"quota",
			"resource_exhausted",
		},
		slowThreshold:     10 * time.Second,
		degradedThreshold: 0.3, // 30% error rate
		throttleCooldown:  time.Minute,
	}
}

func (m *Monitor) window(provider string) *providerWindow {
	w, ok := m.windows[provider]
	if !ok {
		w = &providerWindow{}
		m.windows[provider] = w
	}
	return w
}

func (m *Monitor) push(w *providerWindow, latency time.Duration, ok bool) {
	w.latencies = append(w.latencies, latency)
	w.outcomes = append(w.outcomes, ok)
	if len(w.latencies) > m.maxWindow {
		w.latencies = w.latencies[1:]
		w.outcomes = w.outcomes[1:]
	}
}

// RecordSuccess records a successful call.
func (m *Monitor) RecordSuccess(provider string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.window(provider)
	w.successes++
	w.lastSuccess = time.Now()
	m.push(w, latency, true)
}

// RecordFailure records a failed call, noting throttling responses.
func (m *Monitor) RecordFailure(provider string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.window(provider)
	w.failures++
	if err != nil {
		msg := err.Error()
		w.lastError = failureCode(err)
		if m.debug {
			w.lastError = msg
		}
		if m.isThrottle(msg) {
			w.throttles++
			w.lastThrottle = time.Now()
		}
	}
	m.push(w, latency, false)
}

// SetDebug controls whether LastError carries the raw error text. Otherwise
// only the error code is kept, since provider errors can echo credentials.
func (m *Monitor) SetDebug(debug bool) {
	m.mu.Lock()
	m.debug = debug
	m.mu.Unlock()
}

// failureCode reduces err to a stable code that is safe to expose.
func failureCode(err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return "NOT_CONFIGURED"
	}
	return errs.FromError(err, nil).Code()
}

func (m *Monitor) isThrottle(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range m.throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Stats returns a snapshot for one provider.
func (m *Monitor) Stats(provider string) ProviderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statsLocked(provider)
}

// All returns snapshots for every provider seen, sorted by name.
func (m *Monitor) All() []ProviderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.windows))
	for name := range m.windows {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]ProviderStats, 0, len(names))
	for _, name := range names {
		out = append(out, m.statsLocked(name))
	}
	return out
}

func (m *Monitor) statsLocked(provider string) ProviderStats {
	s := ProviderStats{Provider: provider, Status: StatusUnused}
	w, ok := m.windows[provider]
	if !ok || len(w.outcomes) == 0 {
		return s
	}

	s.Successes = w.successes
	s.Failures = w.failures
	s.Requests = w.successes + w.failures
	s.ThrottleCount = w.throttles
	s.LastError = w.lastError
	s.LastSuccess = w.lastSuccess

	var total time.Duration
	failed := 0
	for i, lat := range w.latencies {
		total += lat
		if !w.outcomes[i] {
			failed++
		}
	}
	s.AverageLatency = total / time.Duration(len(w.latencies))
	s.ErrorRate = float64(failed) / float64(len(w.outcomes))

	switch {
	case !w.lastThrottle.IsZero() && time.Since(w.lastThrottle) < m.throttleCooldown:
		s.Status = StatusThrottled
	case s.ErrorRate > m.degradedThreshold, s.AverageLatency > m.slowThreshold:
		s.Status = StatusDegraded
	default:
		s.Status = StatusHealthy
	}
	return s
}
