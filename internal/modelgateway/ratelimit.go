package modelgateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiters throttles outbound calls per provider with a token bucket,
// surfacing RateLimited before a call is even attempted when the local
// bucket is empty.
type Limiters struct {
	mu       sync.Mutex
	perSec   float64
	burst    int
	buckets  map[string]*rate.Limiter
}

func NewLimiters(perSec float64, burst int) *Limiters {
	return &Limiters{perSec: perSec, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

func (l *Limiters) bucket(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[provider]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.perSec), l.burst)
		l.buckets[provider] = b
	}
	return b
}

// Allow reports whether a call to provider may proceed right now, consuming
// a token if so.
func (l *Limiters) Allow(provider string) bool {
	return l.bucket(provider).Allow()
}
