package api

import (
	"sync"
	"sync/atomic"
	"time"

	"hotelbook/internal/config"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter keeps one token bucket per client key. Buckets idle for longer
// than limiterIdleTTL are dropped.
type rateLimiter struct {
	limiters  sync.Map
	cfg       config.APIRateLimitConfig
	lastPrune atomic.Int64
	now       func() time.Time
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	l := &rateLimiter{
		cfg: cfg,
		now: time.Now,
	}
	l.lastPrune.Store(l.now().UnixNano())
	return l
}

// Allow reports whether key may proceed. A non-positive RPS disables limiting.
func (l *rateLimiter) Allow(key string) bool {
	if l.cfg.RPS <= 0 {
		return true
	}
	now := l.now()
	l.prune(now)

	entry := l.getEntry(key)
	entry.lastSeen.Store(now.UnixNano())
	return entry.lim.AllowN(now, 1)
}

func (l *rateLimiter) getEntry(key string) *limiterEntry {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	entry := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)}
	actual, _ := l.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

// prune runs at most once per limiterIdleTTL.
func (l *rateLimiter) prune(now time.Time) {
	last := l.lastPrune.Load()
	if now.UnixNano()-last < int64(limiterIdleTTL) {
		return
	}
	if !l.lastPrune.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-limiterIdleTTL).UnixNano()
	l.limiters.Range(func(k, v any) bool {
		if v.(*limiterEntry).lastSeen.Load() < cutoff {
			l.limiters.Delete(k)
		}
		return true
	})
}

func (l *rateLimiter) size() int {
	n := 0
	l.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
