package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxLocalKeys = 10000

// LocalLimiter holds one token bucket per key, refilled at maxRequests per
// window with a burst of maxRequests.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewLocalLimiter(maxRequests int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:    maxRequests,
	}
}

func (l *LocalLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLocalKeys {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
