package cache

import (
	"testing"
	"time"
)

func TestTTLCacheSetGetDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	if _, ok := c.Get("missing"); ok {
		t.Fatal("empty cache must miss")
	}

	c.Set("a", 42, time.Minute)
	if v, ok := c.Get("a"); !ok || v != 42 {
		t.Fatalf("expected 42, got %d ok=%v", v, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry must miss")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, string]()

	c.Set("short", "value", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Fatal("expired entry must miss")
	}

	c.Set("forever", "value", 0)
	if v, ok := c.Get("forever"); !ok || v != "value" {
		t.Fatalf("zero ttl must never expire, got %q ok=%v", v, ok)
	}
}

func TestNilTTLCacheIsSafe(t *testing.T) {
	var c *TTLCache[string, int]

	c.Set("a", 1, time.Minute)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("nil cache must always miss")
	}
}
