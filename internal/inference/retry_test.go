package inference

import (
	"testing"
	"time"

	"github.com/aether-labs/aether/internal/core"
)

func TestRetryPolicy_Delay(t *testing.T) {
	policy := NewRetryPolicy()

	tests := []struct {
		class   core.FailureClass
		attempt int
		want    time.Duration
	}{
		{core.ClassRateLimited, 1, 5 * time.Second},
		{core.ClassRateLimited, 2, 10 * time.Second},
		{core.ClassRateLimited, 3, 15 * time.Second},
		{core.ClassTransient, 1, 2 * time.Second},
		{core.ClassTransient, 2, 4 * time.Second},
		{core.ClassTransient, 3, 8 * time.Second},
		{core.ClassTransient, 10, time.Minute},
		{core.ClassFatal, 1, 0},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.class, tt.attempt); got != tt.want {
			t.Errorf("Delay(%s, %d) = %v, want %v", tt.class, tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_Options(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(5),
		WithRateLimitBackoff(time.Millisecond, 2*time.Millisecond),
		WithTransientBase(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
	)

	if policy.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", policy.MaxAttempts)
	}
	if got := policy.Delay(core.ClassRateLimited, 2); got != 4*time.Millisecond {
		t.Errorf("rate limit delay = %v, want 4ms", got)
	}
	if got := policy.Delay(core.ClassRateLimited, 4); got != 5*time.Millisecond {
		t.Errorf("capped delay = %v, want 5ms", got)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	if policy.ShouldRetry(core.ClassFatal, 1) {
		t.Error("fatal must not retry")
	}
	if !policy.ShouldRetry(core.ClassRateLimited, 2) {
		t.Error("attempt 2 of 3 should retry")
	}
	if policy.ShouldRetry(core.ClassTransient, 3) {
		t.Error("last attempt should not retry")
	}

	if NewRetryPolicy(WithMaxAttempts(0)).MaxAttempts != 1 {
		t.Error("max attempts should be clamped to 1")
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	policy := NewRetryPolicy(WithJitter(0.5))
	base := 10 * time.Second

	for i := 0; i < 50; i++ {
		d := policy.Delay(core.ClassRateLimited, 2)
		if d < base/2 || d > base*3/2 {
			t.Fatalf("jittered delay %v outside [5s, 15s]", d)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	if NewRateLimiter(0, 5) != nil {
		t.Error("disabled limiter should be nil")
	}
	var disabled *RateLimiter
	if !disabled.TryAcquire() {
		t.Error("nil limiter must never block")
	}

	rl := NewRateLimiter(60, 2)
	if !rl.TryAcquire() || !rl.TryAcquire() {
		t.Fatal("expected burst of 2")
	}
	if rl.TryAcquire() {
		t.Error("expected empty bucket")
	}
	if rl.Available() >= 1 {
		t.Errorf("available = %v, want < 1", rl.Available())
	}
}
