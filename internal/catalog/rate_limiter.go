package catalog

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces catalog requests evenly; bursts are not allowed.
type RateLimiter struct {
	lim *rate.Limiter
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), 1)}
}

// Wait blocks until the next request may go out or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.lim.Wait(ctx)
}
