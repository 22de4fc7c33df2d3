package api

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("alice@hive.com")
	}
	blocked, _ := rl.check("alice@hive.com")
	if blocked {
		t.Fatal("should not block before reaching maxFailures")
	}
}

func TestRateLimiter_BlocksAfterThreshold(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("alice@hive.com")
	}
	blocked, retryAfter := rl.check("alice@hive.com")
	if !blocked {
		t.Fatal("should block after maxFailures")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retryAfter, got %v", retryAfter)
	}
}

func TestRateLimiter_ExponentialBackoff(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures+2; i++ {
		rl.recordFailure("alice@hive.com")
	}
	rec := rl.attempts["alice@hive.com"]
	wantMin := time.Now().Add(3 * time.Minute)
	if rec.lockedUntil.Before(wantMin) {
		t.Fatalf("expected lockout of at least 4m, got until %v", rec.lockedUntil)
	}
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("alice@hive.com")
	}
	rl.recordSuccess("alice@hive.com")
	blocked, _ := rl.check("alice@hive.com")
	if blocked {
		t.Fatal("success should clear the lockout")
	}
}

func TestRateLimiter_IsolatesAccounts(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("alice@hive.com")
	}
	blocked, _ := rl.check("bob@hive.com")
	if blocked {
		t.Fatal("other accounts must be unaffected")
	}
}

func TestRateLimiter_SweepRemovesExpired(t *testing.T) {
	rl := newLoginRateLimiter()
	rl.recordFailure("alice@hive.com")
	rl.attempts["alice@hive.com"].lastFailure = time.Now().Add(-2 * attemptExpiry)
	rl.sweep()
	if _, ok := rl.attempts["alice@hive.com"]; ok {
		t.Fatal("expected stale record to be swept")
	}
}

func TestAPISweeperLifecycle(t *testing.T) {
	a := newTestAPI(t)
	a.rateLimiter.recordFailure("alice@hive.com")

	a.StartSweeper()
	a.Close()
	// Close is idempotent.
	a.Close()
}

func TestRateLimiter_MaxLockoutCap(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures+20; i++ {
		rl.recordFailure("alice@hive.com")
	}
	rec := rl.attempts["alice@hive.com"]
	limit := time.Now().Add(maxLockout + time.Second)
	if rec.lockedUntil.After(limit) {
		t.Fatalf("lockout exceeds cap: until %v", rec.lockedUntil)
	}
}
