package gate

import (
	"sync"
	"time"
)

// Clock is the mechanism used by the rate limiter to get the current time.
type Clock interface {
	Now() time.Time
}

type wall struct{}

func (wall) Now() time.Time {
	return time.Now()
}

// RateLimiter admits requests per source IP using a sliding window: a request
// is admitted when fewer than burst requests fell inside the window, and its
// own timestamp then joins the bucket. Rejected requests are not recorded, so
// a flooding source recovers as soon as its admitted requests age out.
type RateLimiter struct {
	window time.Duration
	burst  int
	clock  Clock

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewRateLimiter returns a limiter admitting burst requests per window for
// each source IP. A nil clock means wall time.
func NewRateLimiter(window time.Duration, burst int, clock Clock) *RateLimiter {
	if clock == nil {
		clock = wall{}
	}
	return &RateLimiter{
		window:  window,
		burst:   burst,
		clock:   clock,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records and admits a request from ip, or rejects it when the bucket
// is full. Timestamps older than the window are pruned first.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket := rl.buckets[ip]
	live := bucket[:0]
	for _, t := range bucket {
		// The window is inclusive: only timestamps strictly older than
		// now-window are pruned.
		if !t.Before(cutoff) {
			live = append(live, t)
		}
	}
	if len(live) >= rl.burst {
		if len(live) == 0 {
			delete(rl.buckets, ip)
		} else {
			rl.buckets[ip] = live
		}
		return false
	}
	rl.buckets[ip] = append(live, now)
	return true
}
