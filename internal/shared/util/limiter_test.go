package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// 10 tokens per second, burst of 2
	l := NewLimiter(10, 2)

	if !l.Allow(1) {
		t.Error("expected first token to be allowed")
	}
	if !l.Allow(1) {
		t.Error("expected second token to be allowed (burst)")
	}
	if l.Allow(1) {
		t.Error("expected third token to be rejected (burst exhausted)")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow(1) {
		t.Error("expected token to be refilled after wait")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		if !l.Allow(1) {
			t.Fatalf("expected unlimited limiter to allow event %d", i)
		}
	}
}

func TestLimiter_SetRate(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Allow(1)
	if l.Allow(1) {
		t.Fatal("expected burst of 1 to be exhausted")
	}
	l.SetRate(0, 1)
	if !l.Allow(1) {
		t.Fatal("expected unlimited rate after SetRate")
	}
}

func TestLimiterRegistry(t *testing.T) {
	// 100 tokens/sec, burst 10, ttl 100ms
	reg := NewLimiterRegistry(100, 10, 100*time.Millisecond)
	defer reg.Close()

	l1 := reg.Get("scripts/a.sh")
	l2 := reg.Get("scripts/b.sh")

	if l1 == l2 {
		t.Error("expected different limiters for different keys")
	}

	if reg.Get("scripts/a.sh") != l1 {
		t.Error("expected same limiter for same key")
	}

	time.Sleep(250 * time.Millisecond)
	// Cleanup should have removed the old limiters
	l1New := reg.Get("scripts/a.sh")
	if l1New == l1 {
		t.Error("expected old limiter to be cleaned up and replaced")
	}
}

func TestLimiterRegistry_SetRateAppliesToLive(t *testing.T) {
	reg := NewLimiterRegistry(1, 1, time.Minute)
	defer reg.Close()

	l := reg.Get("x")
	l.Allow(1)
	reg.SetRate(0, 1)
	if !l.Allow(1) {
		t.Fatal("expected live limiter to pick up the new rate")
	}
	reg.Close()
	reg.Close()
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(100, 1)
	l.Allow(1) // consume burst

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx, 1)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Wait returned too early")
	}
}
