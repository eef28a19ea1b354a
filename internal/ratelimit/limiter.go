package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	perHour  int
}

// NewLimiter allows requestsPerHour per client with bursts up to burst
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	r := rate.Limit(float64(requestsPerHour) / 3600.0)

	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		perHour:  requestsPerHour,
	}
}

// PerHour is the configured hourly allowance
func (l *Limiter) PerHour() int {
	return l.perHour
}

func (l *Limiter) limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[client]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[client] = limiter
	}

	return limiter
}

// Allow consumes a token for client if one is available
func (l *Limiter) Allow(client string) bool {
	return l.limiter(client).Allow()
}

// Tokens returns the tokens client has left
func (l *Limiter) Tokens(client string) float64 {
	return l.limiter(client).Tokens()
}

// Prune forgets clients whose bucket is full again
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for client, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, client)
			removed++
		}
	}
	return removed
}
