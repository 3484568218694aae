package httpserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type callerLimiter struct {
	limiter    *rate.Limiter
	lastActive time.Time
}

// CallerRateLimiter keeps one token bucket per caller. Idle buckets are swept
// lazily on Allow.
type CallerRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*callerLimiter
	lastSweep time.Time
	now       func() time.Time
}

func NewCallerRateLimiter(perSecond float64, burst int) *CallerRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &CallerRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*callerLimiter),
		now:      time.Now,
	}
}

func (l *CallerRateLimiter) Allow(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastActive) > limiterIdleTTL {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[caller]
	if !ok {
		entry = &callerLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[caller] = entry
	}
	entry.lastActive = now
	return entry.limiter.AllowN(now, 1)
}
