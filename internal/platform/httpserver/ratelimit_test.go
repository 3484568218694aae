package httpserver

import (
	"testing"
	"time"
)

func TestCallerRateLimiterRefillsAndSweeps(t *testing.T) {
	limiter := NewCallerRateLimiter(1, 1)
	current := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	if !limiter.Allow("a") {
		t.Fatal("first request should pass")
	}
	if limiter.Allow("a") {
		t.Fatal("burst of one should block the second request")
	}
	current = current.Add(1100 * time.Millisecond)
	if !limiter.Allow("a") {
		t.Fatal("bucket should refill after one second")
	}

	current = current.Add(limiterIdleTTL + time.Minute)
	limiter.Allow("b")
	if _, ok := limiter.limiters["a"]; ok {
		t.Fatal("idle caller should be swept")
	}
}
