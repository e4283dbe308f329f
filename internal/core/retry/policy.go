// Package retry runs operations under a bounded retry policy with backoff,
// jitter and an optional fallback.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy selects how the delay grows between attempts.
type Strategy string

const (
	Exponential Strategy = "exponential"
	Linear      Strategy = "linear"
	Fixed       Strategy = "fixed"
	Fibonacci   Strategy = "fibonacci"
)

// Policy defines retry behavior.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      bool          `yaml:"jitter"`
	Strategy    Strategy      `yaml:"strategy"`
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    60 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
	Strategy:    Exponential,
}

// NetworkPolicy is tuned for transient network calls.
var NetworkPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
	Strategy:    Exponential,
}

// DatabasePolicy retries once quickly before falling back.
var DatabasePolicy = Policy{
	MaxAttempts: 2,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
	Strategy:    Exponential,
}

// AIAPIPolicy allows slower recovery for LLM providers.
var AIAPIPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
	Strategy:    Exponential,
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultPolicy.Multiplier
	}
	if p.Strategy == "" {
		p.Strategy = Exponential
	}
	return p
}

// Delay returns the wait before the next try after the given 1-based
// attempt failed. The result never exceeds MaxDelay; with jitter it is
// scaled by a factor in [0.5, 1.0].
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseDelay)

	var d float64
	switch p.Strategy {
	case Linear:
		d = base * float64(attempt)
	case Fixed:
		d = base
	case Fibonacci:
		d = base * float64(fibonacci(attempt))
	default:
		d = base * math.Pow(p.Multiplier, float64(attempt-1))
	}

	if maxDelay := float64(p.MaxDelay); d > maxDelay || math.IsInf(d, 0) || math.IsNaN(d) {
		d = maxDelay
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

func fibonacci(n int) int {
	if n <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i < n; i++ {
		a, b = b, a+b
	}
	return b
}
