// Package ratelimit wraps golang.org/x/time/rate with naming so that
// waits show up attributably in logs and errors.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound requests to a named upstream service.
type Limiter struct {
	name    string
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained, with burst
// equal to the rate.
func New(name string, requestsPerSecond int) *Limiter {
	return NewWithBurst(name, requestsPerSecond, requestsPerSecond)
}

// NewWithBurst creates a limiter with an explicit burst size.
func NewWithBurst(name string, requestsPerSecond, burst int) *Limiter {
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a request may proceed, or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request may proceed right now without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the upstream service name this limiter guards.
func (l *Limiter) Name() string {
	return l.name
}
