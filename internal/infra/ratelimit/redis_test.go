package ratelimit

import (
	"testing"
	"time"
)

func TestWindowDecision(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	decision := windowDecision(1, 900, 3, now)
	if !decision.Allowed || decision.Remaining != 2 {
		t.Fatalf("first hit: %+v", decision)
	}
	if decision.ResetAt != now.Add(900*time.Millisecond) {
		t.Fatalf("reset should track the window ttl, got %s", decision.ResetAt)
	}

	decision = windowDecision(3, 400, 3, now)
	if !decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("hit at the limit still passes: %+v", decision)
	}

	decision = windowDecision(4, 400, 3, now)
	if decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("hit over the limit must be denied: %+v", decision)
	}

	// Key expired between INCR and PTTL: the window is over, not open-ended.
	decision = windowDecision(4, -2, 3, now)
	if decision.ResetAt != now {
		t.Fatalf("negative ttl should clamp the reset to now, got %s", decision.ResetAt)
	}
}

func TestNewRedisLimiter_RequiresAddr(t *testing.T) {
	if _, err := NewRedisLimiter(RedisLimiterConfig{}); err == nil {
		t.Fatal("expected error for missing addr")
	}
}
