package worker

import (
	"math"
	"math/rand/v2"
	"time"

	"hotelbook/internal/config"
)

// RetryPolicy is exponential backoff over a bounded number of attempts.
// MaxAttempts counts the first try, so 3 means two retries.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter spreads each delay by up to ±Jitter of its value, 0..1.
	Jitter float64

	rand func() float64
}

func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
	}
}

// Exhausted reports whether no attempt may follow the given 1-based attempt.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxAttempts
}

// NextDelay returns the wait after the given 1-based attempt. The
// exponential base is capped by MaxDelay before jitter is applied.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}
	if j := math.Min(r.Jitter, 1); j > 0 {
		rnd := r.rand
		if rnd == nil {
			rnd = rand.Float64
		}
		delay *= 1 + j*(2*rnd()-1)
	}

	d := time.Duration(delay)
	if d <= 0 {
		d = initial
	}
	return d
}
