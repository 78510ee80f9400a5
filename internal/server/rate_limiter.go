// Package server builds the per-session token bucket that keeps one client
// from flooding its partner.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows burst lines at once and refills the bucket
// completely every interval.
func newRateLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	every := interval / time.Duration(burst)
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(every), burst)
}
