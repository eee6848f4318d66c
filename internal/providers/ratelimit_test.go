package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(10)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("initial burst should not block, took %s", elapsed)
	}
}

func TestRateLimiterThrottles(t *testing.T) {
	rl := NewRateLimiter(100)
	ctx := context.Background()

	// Drain the bucket, then the next call must wait for a refill.
	for i := 0; i < 100; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("expected throttling once the bucket is drained")
	}
}

func TestRateLimiterStatus(t *testing.T) {
	rl := NewRateLimiter(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	st := rl.Status()
	if st.TotalConsumed != 3 {
		t.Errorf("expected 3 consumed tokens, got %d", st.TotalConsumed)
	}
	if st.TokensLimit != 10 {
		t.Errorf("expected limit 10, got %v", st.TokensLimit)
	}
	if st.TokensAvailable >= st.TokensLimit {
		t.Errorf("expected drained tokens, got %v", st.TokensAvailable)
	}
}

func TestRateLimiterContextCancel(t *testing.T) {
	// At this rate the bucket starts below one token, so Wait blocks.
	rl := NewRateLimiter(0.001)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("expected context deadline error")
	}
}
