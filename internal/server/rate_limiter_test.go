package server

import (
	"testing"
	"time"
)

func TestRateLimiterEnforcesLimit(t *testing.T) {
	limiter := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("stripe:10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("request over the limit must be rejected")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := newRateLimiter(1, time.Minute)

	if !limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("first key should be allowed")
	}
	if !limiter.Allow("stripe:10.0.0.2") {
		t.Fatal("second key has its own window")
	}
	if limiter.Allow("stripe:10.0.0.1") {
		t.Fatal("first key is exhausted")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter := newRateLimiter(1, time.Millisecond)

	if !limiter.Allow("k") {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow("k") {
		t.Fatal("second request in window must be rejected")
	}
	time.Sleep(5 * time.Millisecond)
	if !limiter.Allow("k") {
		t.Fatal("new window should allow again")
	}
}

func TestRateLimiterRejectsEmptyKey(t *testing.T) {
	limiter := newRateLimiter(10, time.Minute)
	if limiter.Allow("") {
		t.Fatal("empty key must be rejected")
	}
}
