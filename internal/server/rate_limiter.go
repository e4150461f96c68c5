// Package server throttles inbound frames per connection with a token
// bucket, so a chatty client cannot spin the read pump.
package server

import (
	"math"
	"sync"
	"time"
)

// inboundLimiter lets a connection burst up to the configured number of
// frames, refilled continuously at burst-per-interval. Zero or negative
// settings fall back to one frame per second.
type inboundLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	refill float64 // tokens per second
	last   time.Time
}

func newInboundLimiter(burst int, interval time.Duration) *inboundLimiter {
	if burst < 1 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &inboundLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		refill: float64(burst) / interval.Seconds(),
		last:   time.Now(),
	}
}

func (l *inboundLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens = math.Min(l.burst, l.tokens+elapsed*l.refill)
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
