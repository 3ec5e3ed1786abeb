package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter keyed by provider and client IP.
// It guards the webhook endpoint only, so the key space stays small; stale
// windows are pruned opportunistically on each new window start.
type rateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	buckets map[string]*rateBucket
}

type rateBucket struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateBucket),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[key]
	if bucket == nil || now.Sub(bucket.start) > r.window {
		if bucket == nil {
			r.prune(now)
		}
		bucket = &rateBucket{start: now}
		r.buckets[key] = bucket
	}

	if bucket.count >= r.limit {
		return false
	}
	bucket.count++
	return true
}

func (r *rateLimiter) prune(now time.Time) {
	for key, bucket := range r.buckets {
		if now.Sub(bucket.start) > r.window {
			delete(r.buckets, key)
		}
	}
}
