package signal

import (
	"testing"
	"time"
)

func TestJoinRateLimiter_CapsAttemptsWithinWindow(t *testing.T) {
	rl := NewJoinRateLimiter(2, time.Minute)

	if !rl.Allow("c1") || !rl.Allow("c1") {
		t.Fatalf("first attempts within limit were denied")
	}
	if rl.Allow("c1") {
		t.Fatalf("third attempt within window was allowed")
	}
	// Another connection has its own budget.
	if !rl.Allow("c2") {
		t.Fatalf("separate connection was rate limited")
	}
}

func TestJoinRateLimiter_WindowExpires(t *testing.T) {
	rl := NewJoinRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("c1") {
		t.Fatalf("first attempt denied")
	}
	if rl.Allow("c1") {
		t.Fatalf("second attempt within window allowed")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("c1") {
		t.Fatalf("attempt after window expiry denied")
	}
}

func TestJoinRateLimiter_DisabledWhenLimitZero(t *testing.T) {
	rl := NewJoinRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("disabled limiter denied attempt %d", i)
		}
	}
}

func TestJoinRateLimiter_ForgetResetsBudget(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	if !rl.Allow("c1") {
		t.Fatalf("first attempt denied")
	}
	rl.Forget("c1")
	if !rl.Allow("c1") {
		t.Fatalf("attempt after Forget denied")
	}
}
